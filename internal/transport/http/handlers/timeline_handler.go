package handlers

import (
	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

// TimelineHandler serves a task's lifecycle audit trail.
type TimelineHandler struct {
	service ports.TaskService
	logger  *logger.Logger
}

func NewTimelineHandler(service ports.TaskService, logger *logger.Logger) *TimelineHandler {
	return &TimelineHandler{service: service, logger: logger}
}

func (h *TimelineHandler) GetEvents(c *fiber.Ctx) error {
	id, ok := parseTaskID(c)
	if !ok {
		return taskNotFound(c)
	}

	events, err := h.service.GetTaskEvents(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, "task_events", err)
	}
	return c.JSON(dto.TaskEventsToResponse(events))
}
