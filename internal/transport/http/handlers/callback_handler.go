package handlers

import (
	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/transport/http/dto"
	"github.com/adscript/backend/internal/transport/http/middleware"
	"github.com/gofiber/fiber/v2"
)

// CallbackHandler receives results posted back by the rewrite workflow.
type CallbackHandler struct {
	service ports.CallbackService
	logger  *logger.Logger
}

func NewCallbackHandler(service ports.CallbackService, logger *logger.Logger) *CallbackHandler {
	return &CallbackHandler{service: service, logger: logger}
}

func (h *CallbackHandler) ReceiveResult(c *fiber.Ctx) error {
	id, ok := parseTaskID(c)
	if !ok {
		return taskNotFound(c)
	}

	// An unreadable body is treated as empty so authentication still runs
	// first and the fields are reported as missing.
	var req dto.CallbackRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			h.logger.Warnw("callback_body_parse_failed", "path_id", id, "error", err)
			req = dto.CallbackRequest{}
		}
	}

	taskID, valid := req.ParseTaskID()
	result, err := h.service.Receive(c.UserContext(), ports.CallbackInput{
		PathID:        id,
		BearerToken:   middleware.BearerToken(c),
		TaskID:        taskID,
		TaskIDInvalid: !valid,
		NewScript:     req.NewScript,
		Analysis:      req.Analysis,
		RequestID:     middleware.GetRequestID(c),
	})
	if err != nil {
		return respondError(c, h.logger, "callback", err)
	}

	h.logger.Infow("callback_success", "id", id, "status", result.Task.Status, "applied", result.Applied)
	return c.JSON(dto.CallbackResponse{OK: true})
}
