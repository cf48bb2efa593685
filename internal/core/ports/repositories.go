package ports

import (
	"context"
	"time"

	"github.com/adscript/backend/internal/domain"
)

type TaskRepository interface {
	Create(ctx context.Context, task *domain.AdScriptTask) error
	GetByID(ctx context.Context, id uint) (*domain.AdScriptTask, error)
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.AdScriptTask, int64, error)
	// UpdateIfNotTerminal applies update only while the task's status accepts
	// update.Event, and reports the status the write replaced. It returns
	// domain.ErrTaskNotFound for unknown ids, and the unchanged task together
	// with domain.ErrTransitionNoOp when the guard fails.
	UpdateIfNotTerminal(ctx context.Context, id uint, update domain.TaskUpdate) (*domain.AdScriptTask, domain.TaskStatus, error)
	Delete(ctx context.Context, id uint) error
}

type TaskEventRepository interface {
	Create(ctx context.Context, event *domain.TaskEventRecord) error
	GetByTask(ctx context.Context, taskID uint, limit int) ([]domain.TaskEventRecord, error)
	DeleteByTask(ctx context.Context, taskID uint) error
	CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error)
}
