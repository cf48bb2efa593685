package domain

import (
	"time"
)

// TaskStatus is the lifecycle state of an ad-script task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskStatuses lists every known status in lifecycle order.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusProcessing,
	TaskStatusCompleted,
	TaskStatusFailed,
}

func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition may change the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	for _, known := range TaskStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ==================== ENTITIES ====================

type AdScriptTask struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReferenceScript    string `gorm:"type:text;not null" json:"reference_script"`
	OutcomeDescription string `gorm:"type:text;not null" json:"outcome_description"`

	// Output payload, written only by the transition into completed.
	NewScript *string `gorm:"type:text" json:"new_script"`
	Analysis  *string `gorm:"type:text" json:"analysis"`

	ErrorDetail *string    `gorm:"type:text" json:"error_detail"`
	Status      TaskStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
}

func (AdScriptTask) TableName() string {
	return "ad_script_tasks"
}

// Clone returns a copy that shares no pointers with t.
func (t *AdScriptTask) Clone() *AdScriptTask {
	c := *t
	c.NewScript = cloneString(t.NewScript)
	c.Analysis = cloneString(t.Analysis)
	c.ErrorDetail = cloneString(t.ErrorDetail)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// TaskUpdate describes the fields a lifecycle event writes. Nil pointers leave
// the column untouched.
type TaskUpdate struct {
	Event       TaskEvent
	NewScript   *string
	Analysis    *string
	ErrorDetail *string
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Search  string
	Status  TaskStatus
	Page    int
	PerPage int
}

func (f TaskFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}
