package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100

	// EventsLimit caps the audit trail returned per task.
	EventsLimit = 50

	minReferenceScript    = 20
	minOutcomeDescription = 5
	maxOutcomeDescription = 2000
)

type taskService struct {
	repo      ports.TaskRepository
	events    ports.TaskEventRepository
	lifecycle *LifecycleController
	queue     ports.DispatchQueue
	logger    *logger.Logger
}

func NewTaskService(
	repo ports.TaskRepository,
	events ports.TaskEventRepository,
	lifecycle *LifecycleController,
	queue ports.DispatchQueue,
	log *logger.Logger,
) ports.TaskService {
	return &taskService{
		repo:      repo,
		events:    events,
		lifecycle: lifecycle,
		queue:     queue,
		logger:    log,
	}
}

// CreateTask stores a pending task and queues its dispatch. A saturated queue
// fails the task but still returns it.
func (s *taskService) CreateTask(ctx context.Context, input ports.CreateTaskInput) (*domain.AdScriptTask, error) {
	input.ReferenceScript = strings.TrimSpace(input.ReferenceScript)
	input.OutcomeDescription = strings.TrimSpace(input.OutcomeDescription)

	if err := ValidateCreateInput(input); err != nil {
		return nil, err
	}

	task := &domain.AdScriptTask{
		ReferenceScript:    input.ReferenceScript,
		OutcomeDescription: input.OutcomeDescription,
		Status:             domain.TaskStatusPending,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		s.logger.Errorw("task_create_failed", "error", err)
		return nil, err
	}

	s.lifecycle.Created(ctx, task, domain.TransitionMeta{RequestID: input.RequestID, Source: "api"})

	if err := s.queue.Enqueue(ports.DispatchJob{TaskID: task.ID, RequestID: input.RequestID}); err != nil {
		s.logger.Warnw("task_enqueue_failed", "id", task.ID, "error", err)
		if current, gerr := s.repo.GetByID(ctx, task.ID); gerr == nil {
			return current, nil
		}
	}

	return task, nil
}

// ValidateCreateInput checks already-trimmed input. Lengths count characters.
func ValidateCreateInput(input ports.CreateTaskInput) error {
	v := NewValidationError()

	refLen := utf8.RuneCountInString(input.ReferenceScript)
	switch {
	case refLen == 0:
		v.Add("reference_script", "The reference script field is required.")
	case refLen < minReferenceScript:
		v.Add("reference_script", "The reference script field must be at least 20 characters.")
	}

	outLen := utf8.RuneCountInString(input.OutcomeDescription)
	switch {
	case outLen == 0:
		v.Add("outcome_description", "The outcome description field is required.")
	case outLen < minOutcomeDescription:
		v.Add("outcome_description", "The outcome description field must be at least 5 characters.")
	case outLen > maxOutcomeDescription:
		v.Add("outcome_description", "The outcome description field must not be greater than 2000 characters.")
	}

	return v.Err()
}

func (s *taskService) GetTask(ctx context.Context, id uint) (*domain.AdScriptTask, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *taskService) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.AdScriptTask, int64, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Status != "" && !filter.Status.Valid() {
		v := NewValidationError()
		v.Add("status", "The selected status is invalid.")
		return nil, 0, v
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = DefaultPerPage
	}
	if filter.PerPage > MaxPerPage {
		filter.PerPage = MaxPerPage
	}
	return s.repo.List(ctx, filter)
}

func (s *taskService) GetTaskEvents(ctx context.Context, id uint) ([]domain.TaskEventRecord, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.events.GetByTask(ctx, id, EventsLimit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.TaskEventRecord{}
	}
	return events, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.events.DeleteByTask(ctx, id); err != nil {
		s.logger.Warnw("task_events_delete_failed", "id", id, "error", err)
	}
	s.logger.Infow("task_deleted", "id", id)
	return nil
}
