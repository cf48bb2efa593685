package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

// MemoryTaskRepository keeps tasks in process memory. It backs the "memory"
// database driver and the service tests.
type MemoryTaskRepository struct {
	mu     sync.RWMutex
	tasks  map[uint]*domain.AdScriptTask
	nextID uint
	log    *logger.Logger
}

var _ ports.TaskRepository = (*MemoryTaskRepository)(nil)

func NewMemoryTaskRepository(log *logger.Logger) *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks: make(map[uint]*domain.AdScriptTask),
		log:   log,
	}
}

func (r *MemoryTaskRepository) Create(ctx context.Context, task *domain.AdScriptTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	task.ID = r.nextID
	task.Status = domain.TaskStatusPending
	task.CreatedAt = now
	task.UpdatedAt = now

	r.tasks[task.ID] = task.Clone()
	r.log.Infow("task_repo_create_ok", "id", task.ID)
	return nil
}

func (r *MemoryTaskRepository) GetByID(ctx context.Context, id uint) (*domain.AdScriptTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) List(ctx context.Context, filter domain.TaskFilter) ([]domain.AdScriptTask, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []domain.AdScriptTask
	for _, task := range r.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(task.ReferenceScript), search) &&
			!strings.Contains(strings.ToLower(task.OutcomeDescription), search) {
			continue
		}
		matched = append(matched, *task.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := filter.Offset()
	if start >= len(matched) {
		return []domain.AdScriptTask{}, total, nil
	}
	end := len(matched)
	if filter.PerPage > 0 && start+filter.PerPage < end {
		end = start + filter.PerPage
	}
	return matched[start:end], total, nil
}

// UpdateIfNotTerminal runs the transition table under the write lock, which
// makes the check and the write one atomic step.
func (r *MemoryTaskRepository) UpdateIfNotTerminal(ctx context.Context, id uint, update domain.TaskUpdate) (*domain.AdScriptTask, domain.TaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, "", domain.ErrTaskNotFound
	}

	if !update.Event.Accepts(task.Status) {
		r.log.Infow("task_repo_update_noop", "id", id, "event", update.Event, "status", task.Status)
		return task.Clone(), task.Status, domain.ErrTransitionNoOp
	}

	to, err := domain.Transition(task.Status, update.Event)
	if err != nil {
		return nil, "", err
	}

	from := task.Status
	task.Status = to
	if update.NewScript != nil {
		v := *update.NewScript
		task.NewScript = &v
	}
	if update.Analysis != nil {
		v := *update.Analysis
		task.Analysis = &v
	}
	if update.ErrorDetail != nil {
		v := *update.ErrorDetail
		task.ErrorDetail = &v
	}
	task.UpdatedAt = time.Now()

	r.log.Infow("task_repo_update_ok", "id", id, "event", update.Event, "from", from, "status", task.Status)
	return task.Clone(), from, nil
}

func (r *MemoryTaskRepository) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(r.tasks, id)
	r.log.Infow("task_repo_delete_ok", "id", id)
	return nil
}

// MemoryTaskEventRepository keeps the lifecycle trail in memory.
type MemoryTaskEventRepository struct {
	mu     sync.RWMutex
	events []domain.TaskEventRecord
	nextID uint
}

var _ ports.TaskEventRepository = (*MemoryTaskEventRepository)(nil)

func NewMemoryTaskEventRepository() *MemoryTaskEventRepository {
	return &MemoryTaskEventRepository{}
}

func (r *MemoryTaskEventRepository) Create(ctx context.Context, event *domain.TaskEventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event.ID = r.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *MemoryTaskEventRepository) GetByTask(ctx context.Context, taskID uint, limit int) ([]domain.TaskEventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []domain.TaskEventRecord
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].TaskID != taskID {
			continue
		}
		events = append(events, r.events[i])
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (r *MemoryTaskEventRepository) DeleteByTask(ctx context.Context, taskID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	for _, e := range r.events {
		if e.TaskID != taskID {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return nil
}

func (r *MemoryTaskEventRepository) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := r.events[:0]
	var deleted int64
	for _, e := range r.events {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}
