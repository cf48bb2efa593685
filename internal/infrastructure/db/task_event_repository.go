package db

import (
	"context"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskEventRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskEventRepository(db *gorm.DB, log *logger.Logger) ports.TaskEventRepository {
	return &taskEventRepository{
		db:  db,
		log: log,
	}
}

func (r *taskEventRepository) Create(ctx context.Context, event *domain.TaskEventRecord) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		r.log.Errorw("task_event_repo_create_failed", "task_id", event.TaskID, "event", event.Event, "error", err)
		return err
	}
	r.log.Debugw("task_event_repo_create_ok", "id", event.ID, "task_id", event.TaskID, "event", event.Event, "applied", event.Applied)
	return nil
}

func (r *taskEventRepository) GetByTask(ctx context.Context, taskID uint, limit int) ([]domain.TaskEventRecord, error) {
	query := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at desc").
		Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []domain.TaskEventRecord
	err := query.Find(&events).Error
	if err != nil {
		r.log.Errorw("task_event_repo_get_by_task_failed", "task_id", taskID, "error", err)
		return nil, err
	}
	return events, nil
}

func (r *taskEventRepository) DeleteByTask(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&domain.TaskEventRecord{}).Error; err != nil {
		r.log.Errorw("task_event_repo_delete_failed", "task_id", taskID, "error", err)
		return err
	}
	return nil
}

// CleanupOld removes events older than the specified duration
func (r *taskEventRepository) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.TaskEventRecord{})
	if res.Error != nil {
		r.log.Errorw("task_event_repo_cleanup_failed", "error", res.Error)
		return 0, res.Error
	}
	r.log.Infow("task_event_repo_cleanup_ok", "deleted", res.RowsAffected)
	return res.RowsAffected, nil
}
