package http

import (
	"github.com/adscript/backend/internal/config"
	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/core/services"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/infrastructure/queue"
	"github.com/adscript/backend/internal/infrastructure/realtime"
	"github.com/adscript/backend/internal/transport/http/handlers"
	httpmw "github.com/adscript/backend/internal/transport/http/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type RouterConfig struct {
	TaskRepo  ports.TaskRepository
	EventRepo ports.TaskEventRepository
	Logger    *logger.Logger
	Config    *config.Config

	// Sender overrides the webhook client; nil uses the configured one.
	Sender services.Sender
}

// Runtime holds the background components main has to start and stop.
type Runtime struct {
	Pool    *queue.WorkerPool
	Cleanup *services.CleanupService
	Hub     *realtime.Hub
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) *Runtime {
	log := cfg.Logger

	hub := realtime.NewHub(log.Named("realtime"))
	recorder := services.NewEventRecorder(cfg.EventRepo, log.Named("events"))
	notifier := services.NewFailureNotifier(cfg.Config.Alerts, cfg.Config.Dispatch, log.Named("alerts"))

	lifecycle := services.NewLifecycleController(cfg.TaskRepo, log.Named("lifecycle"), recorder, hub, notifier)

	sender := cfg.Sender
	if sender == nil {
		sender = services.NewDispatchClient(cfg.Config.Webhook, cfg.Config.App, log.Named("dispatch"))
	}
	dispatcher := services.NewDispatcher(cfg.TaskRepo, lifecycle, sender, log.Named("dispatch"))
	pool := queue.NewWorkerPool(cfg.Config.Dispatch.Workers, cfg.Config.Dispatch.QueueSize, log.Named("pool"))
	dispatchQueue := services.NewPoolQueue(pool, dispatcher, log.Named("dispatch"))

	taskService := services.NewTaskService(cfg.TaskRepo, cfg.EventRepo, lifecycle, dispatchQueue, log.Named("tasks"))
	callbackService := services.NewCallbackService(cfg.TaskRepo, lifecycle, cfg.Config.Auth.CallbackToken, log.Named("callback"))
	cleanupService := services.NewCleanupService(
		cfg.EventRepo,
		cfg.Config.Features.EventRetention,
		cfg.Config.Features.EventCleanupInterval,
		log.Named("cleanup"),
	)

	// Initialize handlers
	taskHandler := handlers.NewTaskHandler(taskService, log)
	timelineHandler := handlers.NewTimelineHandler(taskService, log)
	callbackHandler := handlers.NewCallbackHandler(callbackService, log)
	eventsHandler := handlers.NewEventsHandler(hub, log)
	cleanupHandler := handlers.NewCleanupHandler(cleanupService, log)

	// Realtime task updates
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/ad-scripts", websocket.New(eventsHandler.Handle))

	api := app.Group("/api")

	// Workflow callback, authenticated by the shared callback token
	api.Post("/ad-scripts/:id/result", callbackHandler.ReceiveResult)

	// Task routes
	admin := httpmw.AdminAuth(cfg.Config)
	api.Post("/ad-scripts", admin, taskHandler.CreateTask)
	api.Get("/ad-scripts", admin, taskHandler.ListTasks)
	api.Get("/ad-scripts/:id", admin, taskHandler.GetTask)
	api.Delete("/ad-scripts/:id", admin, taskHandler.DeleteTask)
	api.Get("/ad-scripts/:id/events", admin, timelineHandler.GetEvents)

	// Maintenance
	api.Post("/admin/events/cleanup", admin, cleanupHandler.PruneEvents)

	return &Runtime{
		Pool:    pool,
		Cleanup: cleanupService,
		Hub:     hub,
	}
}
