package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adscript/backend/internal/domain"
)

type ErrorResponse struct {
	Error   string              `json:"error,omitempty"`
	Message string              `json:"message,omitempty"`
	Details []string            `json:"details,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// ValidationResponse builds the 422 body from per-field messages.
func ValidationResponse(fields map[string][]string, messages []string) ErrorResponse {
	message := "The given data was invalid."
	if len(messages) > 0 {
		message = messages[0]
		if extra := len(messages) - 1; extra == 1 {
			message += " (and 1 more error)"
		} else if extra > 1 {
			message += fmt.Sprintf(" (and %d more errors)", extra)
		}
	}
	return ErrorResponse{Message: message, Errors: fields}
}

type CreateTaskRequest struct {
	ReferenceScript    string `json:"reference_script"`
	OutcomeDescription string `json:"outcome_description"`
}

type CreateTaskResponse struct {
	ID     uint              `json:"id"`
	Status domain.TaskStatus `json:"status"`
}

// CallbackRequest is the workflow's result body. TaskID stays raw so a
// non-integer value can be told apart from a missing one.
type CallbackRequest struct {
	TaskID    json.RawMessage `json:"task_id"`
	NewScript string          `json:"new_script"`
	Analysis  string          `json:"analysis"`
}

// ParseTaskID returns (nil, true) for a missing or null task_id, (nil, false)
// for a value that is not an integer.
func (r *CallbackRequest) ParseTaskID() (id *int64, ok bool) {
	raw := bytes.TrimSpace(r.TaskID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}

	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > 1<<53 {
			return nil, false
		}
		n := int64(t)
		return &n, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, true
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return &n, true
	default:
		return nil, false
	}
}

type CallbackResponse struct {
	OK bool `json:"ok"`
}

type TaskResponse struct {
	ID                 uint              `json:"id"`
	ReferenceScript    string            `json:"reference_script"`
	OutcomeDescription string            `json:"outcome_description"`
	NewScript          *string           `json:"new_script"`
	Analysis           *string           `json:"analysis"`
	ErrorDetail        *string           `json:"error_detail"`
	Status             domain.TaskStatus `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func TaskToResponse(t *domain.AdScriptTask) TaskResponse {
	return TaskResponse{
		ID:                 t.ID,
		ReferenceScript:    t.ReferenceScript,
		OutcomeDescription: t.OutcomeDescription,
		NewScript:          t.NewScript,
		Analysis:           t.Analysis,
		ErrorDetail:        t.ErrorDetail,
		Status:             t.Status,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

type PageMeta struct {
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

type TaskListResponse struct {
	Data []TaskResponse `json:"data"`
	Meta PageMeta       `json:"meta"`
}

func TasksToListResponse(tasks []domain.AdScriptTask, page, perPage int, total int64) TaskListResponse {
	data := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		data = append(data, TaskToResponse(&tasks[i]))
	}

	lastPage := 1
	if perPage > 0 && total > 0 {
		lastPage = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return TaskListResponse{
		Data: data,
		Meta: PageMeta{Page: page, PerPage: perPage, Total: total, LastPage: lastPage},
	}
}

type TaskEventResponse struct {
	ID         uint              `json:"id"`
	Event      domain.TaskEvent  `json:"event"`
	FromStatus domain.TaskStatus `json:"from_status,omitempty"`
	ToStatus   domain.TaskStatus `json:"to_status"`
	Applied    bool              `json:"applied"`
	Message    string            `json:"message"`
	Meta       domain.JSONB      `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func TaskEventsToResponse(events []domain.TaskEventRecord) []TaskEventResponse {
	out := make([]TaskEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TaskEventResponse{
			ID:         e.ID,
			Event:      e.Event,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Applied:    e.Applied,
			Message:    e.Message,
			Meta:       e.Meta,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
