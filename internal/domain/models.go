package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// ==================== AUDIT TRAIL ====================

// TaskEventRecord is one row of a task's lifecycle history. Dropped
// transitions are recorded too, with Applied=false.
type TaskEventRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TaskID     uint       `gorm:"not null;index" json:"task_id"`
	Event      TaskEvent  `gorm:"size:50;not null;index" json:"event"`
	FromStatus TaskStatus `gorm:"size:20" json:"from_status"`
	ToStatus   TaskStatus `gorm:"size:20" json:"to_status"`
	Applied    bool       `gorm:"not null;default:true" json:"applied"`
	Message    string     `gorm:"type:text" json:"message"`
	Meta       JSONB      `gorm:"type:jsonb" json:"meta"`
}

func (TaskEventRecord) TableName() string {
	return "task_events"
}

// TransitionMeta carries correlation context alongside a lifecycle event.
type TransitionMeta struct {
	RequestID     string
	CorrelationID string
	Attempts      int
	StatusCode    int
	Source        string
}

func (m TransitionMeta) JSONB() JSONB {
	meta := JSONB{}
	if m.RequestID != "" {
		meta["request_id"] = m.RequestID
	}
	if m.CorrelationID != "" {
		meta["correlation_id"] = m.CorrelationID
	}
	if m.Attempts > 0 {
		meta["attempts"] = m.Attempts
	}
	if m.StatusCode > 0 {
		meta["status_code"] = m.StatusCode
	}
	if m.Source != "" {
		meta["source"] = m.Source
	}
	return meta
}

// TransitionResult reports what a lifecycle event did to a task.
type TransitionResult struct {
	Task    *AdScriptTask
	Event   TaskEvent
	From    TaskStatus
	To      TaskStatus
	Applied bool
	Message string
	Meta    TransitionMeta
}
