package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Webhook.MaxAttempts != 3 || cfg.Webhook.Timeout != 15*time.Second {
		t.Fatalf("unexpected webhook defaults: %+v", cfg.Webhook)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.QueueSize != 100 {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
	if cfg.Alerts.Timeout != 5*time.Second || cfg.Alerts.RetryDelay != 200*time.Millisecond {
		t.Fatalf("unexpected alerts defaults: %+v", cfg.Alerts)
	}
	if cfg.Features.RequestIDHeader != "X-Request-ID" {
		t.Fatalf("unexpected request id header %q", cfg.Features.RequestIDHeader)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  driver: memory
webhook:
  base_url: http://n8n.local/webhook/
  path: /ad-script-agent
  max_attempts: 5
dispatch:
  workers: 2
auth:
  callback_token: from-file
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ADSCRIPT_AUTH_CALLBACK_TOKEN", "from-env")
	t.Setenv("ADSCRIPT_APP_PUBLIC_URL", "https://relay.example.com/")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Driver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Database.Driver)
	}
	if cfg.Webhook.MaxAttempts != 5 || cfg.Dispatch.Workers != 2 {
		t.Fatalf("file values not applied: %+v %+v", cfg.Webhook, cfg.Dispatch)
	}
	if cfg.Auth.CallbackToken != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Auth.CallbackToken)
	}
	if got := cfg.Webhook.URL(); got != "http://n8n.local/webhook/ad-script-agent" {
		t.Fatalf("unexpected webhook url %q", got)
	}
	if got := cfg.App.CallbackURL(7); got != "https://relay.example.com/api/ad-scripts/7/result" {
		t.Fatalf("unexpected callback url %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"zero attempts", func(c *Config) { c.Webhook.MaxAttempts = 0 }},
		{"zero workers", func(c *Config) { c.Dispatch.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCallbackURLEmptyWithoutPublicURL(t *testing.T) {
	if got := (AppConfig{}).CallbackURL(1); got != "" {
		t.Fatalf("expected empty callback url, got %q", got)
	}
}
