package handlers

import (
	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/core/services"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/transport/http/dto"
	"github.com/adscript/backend/internal/transport/http/middleware"
	"github.com/gofiber/fiber/v2"
)

type TaskHandler struct {
	service ports.TaskService
	logger  *logger.Logger
}

func NewTaskHandler(service ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	task, err := h.service.CreateTask(c.UserContext(), ports.CreateTaskInput{
		ReferenceScript:    req.ReferenceScript,
		OutcomeDescription: req.OutcomeDescription,
		RequestID:          middleware.GetRequestID(c),
	})
	if err != nil {
		return respondError(c, h.logger, "task_create", err)
	}

	h.logger.Infow("task_create_success", "id", task.ID, "status", task.Status)
	return c.Status(fiber.StatusCreated).JSON(dto.CreateTaskResponse{ID: task.ID, Status: task.Status})
}

func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	filter := domain.TaskFilter{
		Search:  c.Query("search"),
		Status:  domain.TaskStatus(c.Query("status")),
		Page:    c.QueryInt("page", 1),
		PerPage: c.QueryInt("per_page", 0),
	}

	tasks, total, err := h.service.ListTasks(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.logger, "task_list", err)
	}

	page, perPage := normalizePage(filter.Page, filter.PerPage)
	return c.JSON(dto.TasksToListResponse(tasks, page, perPage, total))
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id, ok := parseTaskID(c)
	if !ok {
		return taskNotFound(c)
	}

	task, err := h.service.GetTask(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, "task_get", err)
	}
	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	id, ok := parseTaskID(c)
	if !ok {
		return taskNotFound(c)
	}

	if err := h.service.DeleteTask(c.UserContext(), id); err != nil {
		return respondError(c, h.logger, "task_delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// normalizePage mirrors the bounds the service applies to a listing.
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = services.DefaultPerPage
	}
	if perPage > services.MaxPerPage {
		perPage = services.MaxPerPage
	}
	return page, perPage
}
