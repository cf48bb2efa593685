package handlers

import (
	"time"

	"github.com/adscript/backend/internal/core/services"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/gofiber/fiber/v2"
)

// PurgeConfirmText must be echoed back to prune the whole audit trail.
const PurgeConfirmText = "PURGE EVENTS"

type CleanupHandler struct {
	cleanupService *services.CleanupService
	logger         *logger.Logger
}

func NewCleanupHandler(cleanupService *services.CleanupService, logger *logger.Logger) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
		logger:         logger,
	}
}

type CleanupRequestDTO struct {
	// OlderThan is a Go duration ("72h"); empty uses the configured retention.
	OlderThan   string `json:"older_than"`
	All         bool   `json:"all"`
	ConfirmText string `json:"confirm_text"`
}

type CleanupResponseDTO struct {
	Deleted   int64  `json:"deleted"`
	OlderThan string `json:"older_than"`
}

// PruneEvents deletes audit events on demand.
func (h *CleanupHandler) PruneEvents(c *fiber.Ctx) error {
	var req CleanupRequestDTO
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			h.logger.Warnw("cleanup_body_parse_failed", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	age := h.cleanupService.Retention()
	switch {
	case req.All:
		if req.ConfirmText != PurgeConfirmText {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "purging all events requires confirm_text='" + PurgeConfirmText + "'",
			})
		}
		// Rows created in the same instant as the request survive.
		age = time.Nanosecond
	case req.OlderThan != "":
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "older_than must be a duration such as '72h'",
			})
		}
		age = d
	}

	h.logger.Infow("cleanup_request", "older_than", age.String(), "all", req.All)

	deleted, err := h.cleanupService.PruneOlderThan(c.UserContext(), age)
	if err != nil {
		return respondError(c, h.logger, "cleanup", err)
	}
	return c.JSON(CleanupResponseDTO{Deleted: deleted, OlderThan: age.String()})
}
