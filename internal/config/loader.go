package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	App      AppConfig      `mapstructure:"app"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Features FeaturesConfig `mapstructure:"features"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type AppConfig struct {
	// PublicURL is where the external workflow reaches this service.
	PublicURL string `mapstructure:"public_url"`
}

// CallbackURL is the result endpoint advertised to the workflow for a task.
func (a AppConfig) CallbackURL(taskID uint) string {
	if a.PublicURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/ad-scripts/%d/result", strings.TrimRight(a.PublicURL, "/"), taskID)
}

type WebhookConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Path          string        `mapstructure:"path"`
	BearerToken   string        `mapstructure:"bearer_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetryJitter   time.Duration `mapstructure:"retry_jitter"`
	SendRequestID bool          `mapstructure:"send_request_id"`
}

// URL joins base_url and path with exactly one slash.
func (w WebhookConfig) URL() string {
	base := strings.TrimRight(w.BaseURL, "/")
	path := strings.TrimLeft(w.Path, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}

type DispatchConfig struct {
	Workers    int    `mapstructure:"workers"`
	QueueSize  int    `mapstructure:"queue_size"`
	Queue      string `mapstructure:"queue"`
	Connection string `mapstructure:"connection"`
}

type AlertsConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type FeaturesConfig struct {
	RequestIDHeader      string        `mapstructure:"request_id_header"`
	EnableRequestLogging bool          `mapstructure:"enable_request_logging"`
	EventRetention       time.Duration `mapstructure:"event_retention"`
	EventCleanupInterval time.Duration `mapstructure:"event_cleanup_interval"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	CallbackToken  string   `mapstructure:"callback_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "adscript")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})

	v.SetDefault("app.public_url", "")

	v.SetDefault("webhook.base_url", "")
	v.SetDefault("webhook.path", "ad-script-agent")
	v.SetDefault("webhook.bearer_token", "")
	v.SetDefault("webhook.timeout", 15*time.Second)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.retry_delay", 500*time.Millisecond)
	v.SetDefault("webhook.retry_jitter", 250*time.Millisecond)
	v.SetDefault("webhook.send_request_id", true)

	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_size", 100)
	v.SetDefault("dispatch.queue", "webhooks")
	v.SetDefault("dispatch.connection", "local")

	v.SetDefault("alerts.url", "")
	v.SetDefault("alerts.timeout", 5*time.Second)
	v.SetDefault("alerts.retry_delay", 200*time.Millisecond)

	v.SetDefault("features.request_id_header", "X-Request-ID")
	v.SetDefault("features.enable_request_logging", true)
	v.SetDefault("features.event_retention", 720*time.Hour)
	v.SetDefault("features.event_cleanup_interval", time.Hour)

	// Unset keys are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.callback_token", "")
	v.SetDefault("auth.allowed_origins", []string{})
}

// Load reads the YAML file at path, overlays ADSCRIPT_* environment variables
// and fills defaults. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ADSCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("config: webhook.max_attempts must be at least 1")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("config: dispatch.workers must be at least 1")
	}
	return nil
}
