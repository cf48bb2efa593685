package handlers

import (
	"time"

	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/infrastructure/realtime"
	"github.com/gofiber/contrib/websocket"
)

const wsWriteTimeout = 10 * time.Second

// EventsHandler streams task updates over a websocket.
type EventsHandler struct {
	hub    *realtime.Hub
	logger *logger.Logger
}

func NewEventsHandler(hub *realtime.Hub, logger *logger.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger}
}

func (h *EventsHandler) Handle(c *websocket.Conn) {
	updates, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	h.logger.Infow("realtime_client_connected", "clients", h.hub.Clients())

	// Reader: detects client disconnects. Incoming frames are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return
			}
			_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debugw("realtime_write_failed", "error", err)
				return
			}
		case <-closed:
			h.logger.Infow("realtime_client_disconnected")
			return
		}
	}
}
