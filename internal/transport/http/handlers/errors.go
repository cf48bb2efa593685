package handlers

import (
	"errors"
	"strconv"

	"github.com/adscript/backend/internal/core/services"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors to responses. Unknown errors go to the
// global error handler, which hides their detail.
func respondError(c *fiber.Ctx, log *logger.Logger, op string, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Infow(op+"_validation_failed", "fields", verr.Fields)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ValidationResponse(verr.Fields, verr.Messages()))
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, domain.ErrTaskNotFound):
		log.Infow(op+"_not_found")
		return taskNotFound(c)
	default:
		log.Errorw(op+"_failed", "error", err)
		return err
	}
}

// parseTaskID reads the :id path parameter. Ids that cannot exist are
// reported as not found.
func parseTaskID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func taskNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "task not found"})
}
