package db

import (
	"github.com/adscript/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.AdScriptTask{},
		&domain.TaskEventRecord{},
	)
	if err != nil {
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		return err
	}

	return nil
}

func createCustomIndexes(db *gorm.DB) error {
	// Listing is newest first, optionally by status.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ad_script_tasks_status_created
		ON ad_script_tasks (status, created_at)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_task_events_task_created
		ON task_events (task_id, created_at)
	`).Error; err != nil {
		return err
	}

	return nil
}
