package ports

import (
	"context"

	"github.com/adscript/backend/internal/domain"
)

type TaskService interface {
	CreateTask(ctx context.Context, input CreateTaskInput) (*domain.AdScriptTask, error)
	GetTask(ctx context.Context, id uint) (*domain.AdScriptTask, error)
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.AdScriptTask, int64, error)
	GetTaskEvents(ctx context.Context, id uint) ([]domain.TaskEventRecord, error)
	DeleteTask(ctx context.Context, id uint) error
}

type CreateTaskInput struct {
	ReferenceScript    string
	OutcomeDescription string
	RequestID          string
}

type CallbackService interface {
	Receive(ctx context.Context, input CallbackInput) (*CallbackResult, error)
}

// CallbackInput is an inbound result as claimed by the external workflow.
// TaskID is nil when the body carried no task_id; TaskIDInvalid marks a
// task_id that was present but not an integer.
type CallbackInput struct {
	PathID        uint
	BearerToken   string
	TaskID        *int64
	TaskIDInvalid bool
	NewScript     string
	Analysis      string
	RequestID     string
}

type CallbackResult struct {
	Task    *domain.AdScriptTask
	Applied bool
}

// DispatchQueue accepts work items for background webhook delivery.
type DispatchQueue interface {
	Enqueue(job DispatchJob) error
}

type DispatchJob struct {
	TaskID    uint
	RequestID string
}

// TransitionObserver is told about every lifecycle event, applied or dropped.
type TransitionObserver interface {
	OnTransition(ctx context.Context, result domain.TransitionResult)
}
