package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.AdScriptTask) error {
	task.Status = domain.TaskStatusPending
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "id", task.ID)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id uint) (*domain.AdScriptTask, error) {
	var task domain.AdScriptTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) List(ctx context.Context, filter domain.TaskFilter) ([]domain.AdScriptTask, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.AdScriptTask{})
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("(LOWER(reference_script) LIKE ? OR LOWER(outcome_description) LIKE ?)", pattern, pattern)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Errorw("task_repo_count_failed", "error", err)
		return nil, 0, err
	}

	page := query.Order("created_at desc").Order("id desc")
	if filter.PerPage > 0 {
		page = page.Offset(filter.Offset()).Limit(filter.PerPage)
	}

	var tasks []domain.AdScriptTask
	err := page.Find(&tasks).Error
	if err != nil {
		r.log.Errorw("task_repo_list_failed", "error", err)
		return nil, 0, err
	}
	r.log.Debugw("task_repo_list_ok", "count", len(tasks), "total", total)
	return tasks, total, nil
}

// maxUpdateAttempts bounds the compare-and-set loop. Statuses only move
// forward, so a writer can lose the race at most once per lifecycle step.
const maxUpdateAttempts = 4

// UpdateIfNotTerminal is a compare-and-set on the status column: it reads the
// current status, then issues a single UPDATE whose WHERE clause requires that
// exact status. Concurrent writers cannot both win, and the winner knows which
// status it replaced.
func (r *taskRepository) UpdateIfNotTerminal(ctx context.Context, id uint, update domain.TaskUpdate) (*domain.AdScriptTask, domain.TaskStatus, error) {
	target, err := update.Event.Target()
	if err != nil {
		return nil, "", err
	}

	fields := map[string]interface{}{
		"status": string(target),
	}
	if update.NewScript != nil {
		fields["new_script"] = *update.NewScript
	}
	if update.Analysis != nil {
		fields["analysis"] = *update.Analysis
	}
	if update.ErrorDetail != nil {
		fields["error_detail"] = *update.ErrorDetail
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if !update.Event.Accepts(current.Status) {
			r.log.Infow("task_repo_update_noop", "id", id, "event", update.Event, "status", current.Status)
			return current, current.Status, domain.ErrTransitionNoOp
		}

		fields["updated_at"] = time.Now()
		res := r.db.WithContext(ctx).
			Model(&domain.AdScriptTask{}).
			Where("id = ? AND status = ?", id, string(current.Status)).
			Updates(fields)
		if res.Error != nil {
			r.log.Errorw("task_repo_update_failed", "id", id, "event", update.Event, "error", res.Error)
			return nil, "", res.Error
		}
		if res.RowsAffected == 0 {
			r.log.Debugw("task_repo_update_raced", "id", id, "event", update.Event, "attempt", attempt)
			continue
		}

		updated, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
		r.log.Infow("task_repo_update_ok", "id", id, "event", update.Event, "from", current.Status, "status", updated.Status)
		return updated, current.Status, nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	r.log.Warnw("task_repo_update_contended", "id", id, "event", update.Event, "status", current.Status)
	return current, current.Status, domain.ErrTransitionNoOp
}

func (r *taskRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&domain.AdScriptTask{}, id)
	if res.Error != nil {
		r.log.Errorw("task_repo_delete_failed", "id", id, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	r.log.Infow("task_repo_delete_ok", "id", id)
	return nil
}
