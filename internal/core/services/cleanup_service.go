package services

import (
	"context"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

// CleanupService prunes the lifecycle audit trail.
type CleanupService struct {
	events    ports.TaskEventRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
}

func NewCleanupService(events ports.TaskEventRepository, retention, interval time.Duration, log *logger.Logger) *CleanupService {
	return &CleanupService{
		events:    events,
		retention: retention,
		interval:  interval,
		logger:    log,
	}
}

// Retention is the configured age limit for audit events.
func (s *CleanupService) Retention() time.Duration {
	return s.retention
}

// RunOnce deletes events older than the retention window.
func (s *CleanupService) RunOnce(ctx context.Context) (int64, error) {
	return s.PruneOlderThan(ctx, s.retention)
}

// PruneOlderThan deletes events older than age.
func (s *CleanupService) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		verr := NewValidationError()
		verr.Add("older_than", "The older than field must be a positive duration.")
		return 0, verr
	}
	deleted, err := s.events.CleanupOld(ctx, age)
	if err != nil {
		s.logger.Errorw("event_cleanup_failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		s.logger.Infow("event_cleanup_ok", "deleted", deleted, "older_than", age.String())
	}
	return deleted, nil
}

// Start runs RunOnce on every interval until ctx is done. A non-positive
// retention or interval disables the loop.
func (s *CleanupService) Start(ctx context.Context) {
	if s.retention <= 0 || s.interval <= 0 {
		s.logger.Infow("event_cleanup_disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_, _ = s.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
