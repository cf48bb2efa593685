package services

import (
	"context"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

const eventWriteTimeout = 5 * time.Second

// EventRecorder writes every lifecycle event, applied or dropped, to the
// task's audit trail.
type EventRecorder struct {
	repo   ports.TaskEventRepository
	logger *logger.Logger
}

var _ ports.TransitionObserver = (*EventRecorder)(nil)

func NewEventRecorder(repo ports.TaskEventRepository, log *logger.Logger) *EventRecorder {
	return &EventRecorder{repo: repo, logger: log}
}

func (r *EventRecorder) OnTransition(ctx context.Context, result domain.TransitionResult) {
	if result.Task == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventWriteTimeout)
	defer cancel()

	record := &domain.TaskEventRecord{
		TaskID:     result.Task.ID,
		Event:      result.Event,
		FromStatus: result.From,
		ToStatus:   result.To,
		Applied:    result.Applied,
		Message:    TruncateDetail(result.Message),
		Meta:       result.Meta.JSONB(),
	}
	if err := r.repo.Create(writeCtx, record); err != nil {
		r.logger.Warnw("task_event_record_failed", "task_id", result.Task.ID, "event", result.Event, "error", err)
	}
}
