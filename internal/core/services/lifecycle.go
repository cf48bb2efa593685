package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"unicode/utf8"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

// MaxErrorDetailLength caps stored diagnostics, in characters.
const MaxErrorDetailLength = 2000

// LifecycleController applies lifecycle events to tasks. The terminal guard
// is the repository's conditional update; the controller never reads a status
// to decide whether to write.
type LifecycleController struct {
	repo      ports.TaskRepository
	observers []ports.TransitionObserver
	logger    *logger.Logger
}

func NewLifecycleController(repo ports.TaskRepository, log *logger.Logger, observers ...ports.TransitionObserver) *LifecycleController {
	return &LifecycleController{
		repo:      repo,
		observers: observers,
		logger:    log,
	}
}

// Created announces a freshly stored task.
func (c *LifecycleController) Created(ctx context.Context, task *domain.AdScriptTask, meta domain.TransitionMeta) {
	c.notify(ctx, domain.TransitionResult{
		Task:    task.Clone(),
		Event:   domain.EventCreated,
		To:      task.Status,
		Applied: true,
		Message: "Task created",
		Meta:    meta,
	})
}

func (c *LifecycleController) MarkProcessing(ctx context.Context, id uint, meta domain.TransitionMeta) (*domain.TransitionResult, error) {
	return c.apply(ctx, id, domain.TaskUpdate{Event: domain.EventDispatchStarted}, "Dispatch started", meta)
}

// Fail moves a non-terminal task to failed with a truncated diagnostic.
func (c *LifecycleController) Fail(ctx context.Context, id uint, detail string, meta domain.TransitionMeta) (*domain.TransitionResult, error) {
	detail = TruncateDetail(detail)
	return c.apply(ctx, id, domain.TaskUpdate{
		Event:       domain.EventDispatchFailed,
		ErrorDetail: &detail,
	}, detail, meta)
}

// Complete stores the workflow's output and finishes the task.
func (c *LifecycleController) Complete(ctx context.Context, id uint, newScript, analysis string, meta domain.TransitionMeta) (*domain.TransitionResult, error) {
	return c.apply(ctx, id, domain.TaskUpdate{
		Event:     domain.EventCallbackCompleted,
		NewScript: &newScript,
		Analysis:  &analysis,
	}, "Result received", meta)
}

func (c *LifecycleController) apply(ctx context.Context, id uint, update domain.TaskUpdate, message string, meta domain.TransitionMeta) (*domain.TransitionResult, error) {
	if _, err := update.Event.Target(); err != nil {
		return nil, err
	}

	task, from, err := c.repo.UpdateIfNotTerminal(ctx, id, update)
	switch {
	case err == nil:
		result := &domain.TransitionResult{
			Task:    task,
			Event:   update.Event,
			From:    from,
			To:      task.Status,
			Applied: true,
			Message: message,
			Meta:    meta,
		}
		c.logger.Infow("task_transition_applied", "id", id, "event", update.Event, "status", task.Status)
		c.notify(ctx, *result)
		return result, nil

	case errors.Is(err, domain.ErrTransitionNoOp):
		result := &domain.TransitionResult{
			Task:    task,
			Event:   update.Event,
			From:    task.Status,
			To:      task.Status,
			Applied: false,
			Message: fmt.Sprintf("%s ignored: task is %s", update.Event, task.Status),
			Meta:    meta,
		}
		c.logger.Infow("task_transition_dropped", "id", id, "event", update.Event, "status", task.Status)
		c.notify(ctx, *result)
		return result, nil

	default:
		return nil, err
	}
}

func (c *LifecycleController) notify(ctx context.Context, result domain.TransitionResult) {
	for _, o := range c.observers {
		c.notifyOne(ctx, o, result)
	}
}

func (c *LifecycleController) notifyOne(ctx context.Context, o ports.TransitionObserver, result domain.TransitionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("transition_observer_panic",
				"observer", fmt.Sprintf("%T", o),
				"event", result.Event,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	o.OnTransition(ctx, result)
}

// TruncateDetail caps s at MaxErrorDetailLength characters without splitting
// a multi-byte rune.
func TruncateDetail(s string) string {
	return truncateRunes(s, MaxErrorDetailLength)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
