package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adscript/backend/internal/config"
	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/infrastructure/db"
	"github.com/adscript/backend/internal/infrastructure/logger"
	transporthttp "github.com/adscript/backend/internal/transport/http"
	httpmw "github.com/adscript/backend/internal/transport/http/middleware"
	"github.com/adscript/backend/pkg/utils/keygen"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = "config/config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	var (
		database  *gorm.DB
		taskRepo  ports.TaskRepository
		eventRepo ports.TaskEventRepository
	)
	switch cfg.Database.Driver {
	case "memory":
		taskRepo = db.NewMemoryTaskRepository(log.Named("repo"))
		eventRepo = db.NewMemoryTaskEventRepository()
		log.Warn("using in-memory task store; tasks are lost on restart")
	default:
		database, err = db.NewPostgresConnection(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		log.Info("database connection established")

		if err := db.RunMigrations(database); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Info("database migrations completed")

		taskRepo = db.NewTaskRepository(database, log.Named("repo"))
		eventRepo = db.NewTaskEventRepository(database, log.Named("repo"))
	}

	if cfg.Auth.CallbackToken == "" {
		log.Warn("auth.callback_token is empty; every workflow callback will be rejected")
	} else {
		log.Infow("callback token configured", "fingerprint", keygen.Fingerprint(cfg.Auth.CallbackToken))
	}
	if cfg.Webhook.BaseURL == "" {
		log.Warn("webhook.base_url is empty; dispatches will fail")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Admin-Token, " + cfg.Features.RequestIDHeader,
		AllowMethods:  "GET, POST, HEAD, DELETE",
		ExposeHeaders: cfg.Features.RequestIDHeader,
	}))

	app.Use(httpmw.RequestID(cfg.Features.RequestIDHeader))

	if cfg.Features.EnableRequestLogging {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			routePath := ""
			if c.Route() != nil {
				routePath = c.Route().Path
			}
			log.Infow("http_access",
				"method", c.Method(),
				"path", c.Path(),
				"route", routePath,
				"query", string(c.Request().URI().QueryString()),
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.IP(),
				"user_agent", string(c.Request().Header.UserAgent()),
				"request_id", httpmw.GetRequestID(c),
				"req_bytes", len(c.Request().Body()),
				"resp_bytes", len(c.Response().Body()),
			)
			return err
		})
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	runtime := transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		TaskRepo:  taskRepo,
		EventRepo: eventRepo,
		Logger:    log,
		Config:    cfg,
	})

	bgCtx, stopBackground := context.WithCancel(context.Background())
	runtime.Cleanup.Start(bgCtx)

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	log.Infow("server_started",
		"addr", cfg.Server.Address(),
		"driver", cfg.Database.Driver,
		"workers", cfg.Dispatch.Workers,
		"queue_size", cfg.Dispatch.QueueSize,
	)

	gracefulShutdown(app, runtime, stopBackground, database, cfg.Server.ShutdownTimeout, log)
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
			message = "internal server error"
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}

func gracefulShutdown(app *fiber.App, runtime *transporthttp.Runtime, stopBackground context.CancelFunc, database *gorm.DB, timeout time.Duration, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	stopBackground()

	if err := runtime.Pool.StopWait(ctx); err != nil {
		log.Errorf("dispatch queue did not drain: %v", err)
	}

	if database != nil {
		if err := db.Close(database); err != nil {
			log.Errorf("failed to close database connection: %v", err)
		}
	}

	log.Info("server exited gracefully")
}
