package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

// Channel names the task update stream.
const Channel = "ad-script-tasks"

const clientBuffer = 16

// TaskUpdate is the message pushed to subscribers.
type TaskUpdate struct {
	Event   string            `json:"event"`
	Channel string            `json:"channel"`
	ID      uint              `json:"id"`
	Status  domain.TaskStatus `json:"status"`
	Updated string            `json:"updated"`
}

// Hub fans task updates out to subscribers. A subscriber that cannot keep up
// misses messages; it never blocks a broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *logger.Logger
}

var _ ports.TransitionObserver = (*Hub)(nil)

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		logger:  log,
	}
}

// Subscribe registers a client. The returned func unregisters it and closes
// the channel.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, clientBuffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Clients is the current subscriber count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.logger.Debugw("realtime_client_lagging")
		}
	}
}

// OnTransition publishes creations and applied transitions.
func (h *Hub) OnTransition(ctx context.Context, result domain.TransitionResult) {
	if !result.Applied || result.Task == nil {
		return
	}

	msg, err := json.Marshal(TaskUpdate{
		Event:   "AdScriptTaskUpdated",
		Channel: Channel,
		ID:      result.Task.ID,
		Status:  result.Task.Status,
		Updated: result.Task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		h.logger.Warnw("realtime_encode_failed", "id", result.Task.ID, "error", err)
		return
	}
	h.Broadcast(msg)
}
