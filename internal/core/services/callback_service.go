package services

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/pkg/utils/keygen"
)

type callbackService struct {
	repo        ports.TaskRepository
	lifecycle   *LifecycleController
	tokenDigest []byte
	logger      *logger.Logger
}

// NewCallbackService accepts results from the workflow. An empty token
// rejects every callback.
func NewCallbackService(repo ports.TaskRepository, lifecycle *LifecycleController, token string, log *logger.Logger) ports.CallbackService {
	s := &callbackService{
		repo:      repo,
		lifecycle: lifecycle,
		logger:    log,
	}
	if token != "" {
		s.tokenDigest = keygen.Digest(token)
	}
	return s
}

func (s *callbackService) Receive(ctx context.Context, input ports.CallbackInput) (*ports.CallbackResult, error) {
	if !s.authorized(input.BearerToken) {
		s.logger.Warnw("callback_unauthorized", "path_id", input.PathID, "request_id", input.RequestID)
		return nil, ErrUnauthorized
	}

	if err := validateCallback(input); err != nil {
		s.logger.Infow("callback_rejected", "path_id", input.PathID, "error", err)
		return nil, err
	}

	if _, err := s.repo.GetByID(ctx, input.PathID); err != nil {
		return nil, err
	}

	result, err := s.lifecycle.Complete(ctx, input.PathID, input.NewScript, input.Analysis, domain.TransitionMeta{
		RequestID:     input.RequestID,
		CorrelationID: CorrelationID(input.PathID),
		Source:        "callback",
	})
	if err != nil {
		return nil, err
	}

	return &ports.CallbackResult{Task: result.Task, Applied: result.Applied}, nil
}

func (s *callbackService) authorized(token string) bool {
	if s.tokenDigest == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare(keygen.Digest(token), s.tokenDigest) == 1
}

func validateCallback(input ports.CallbackInput) error {
	v := NewValidationError()

	switch {
	case input.TaskIDInvalid:
		v.Add("task_id", "The task id field must be an integer.")
	case input.TaskID == nil:
		v.Add("task_id", "The task id field is required.")
	case *input.TaskID < 0 || uint64(*input.TaskID) != uint64(input.PathID):
		v.Add("task_id", "The selected task id is invalid.")
	}

	if strings.TrimSpace(input.NewScript) == "" {
		v.Add("new_script", "The new script field is required.")
	}
	if strings.TrimSpace(input.Analysis) == "" {
		v.Add("analysis", "The analysis field is required.")
	}

	return v.Err()
}
