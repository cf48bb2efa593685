package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/db"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

const testToken = "callback-secret"

// recordingObserver keeps every transition it sees.
type recordingObserver struct {
	mu      sync.Mutex
	results []domain.TransitionResult
}

func (o *recordingObserver) OnTransition(ctx context.Context, r domain.TransitionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

func (o *recordingObserver) all() []domain.TransitionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.TransitionResult(nil), o.results...)
}

type panickingObserver struct{}

func (panickingObserver) OnTransition(ctx context.Context, r domain.TransitionResult) {
	panic("observer exploded")
}

// senderFunc adapts a function to Sender.
type senderFunc func(ctx context.Context, task *domain.AdScriptTask) Outcome

func (f senderFunc) Send(ctx context.Context, task *domain.AdScriptTask) Outcome {
	return f(ctx, task)
}

// syncQueue runs dispatch jobs inline.
type syncQueue struct {
	dispatcher *Dispatcher
}

func (q *syncQueue) Enqueue(job ports.DispatchJob) error {
	q.dispatcher.Run(context.Background(), job)
	return nil
}

type testEnv struct {
	repo      *db.MemoryTaskRepository
	events    *db.MemoryTaskEventRepository
	observer  *recordingObserver
	lifecycle *LifecycleController
	callback  ports.CallbackService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	env := &testEnv{
		repo:     db.NewMemoryTaskRepository(log),
		events:   db.NewMemoryTaskEventRepository(),
		observer: &recordingObserver{},
	}
	env.lifecycle = NewLifecycleController(env.repo, log, env.observer, NewEventRecorder(env.events, log))
	env.callback = NewCallbackService(env.repo, env.lifecycle, testToken, log)
	return env
}

// taskService builds a task service whose dispatches run inline through sender.
func (e *testEnv) taskService(sender Sender) ports.TaskService {
	log := logger.NewNop()
	dispatcher := NewDispatcher(e.repo, e.lifecycle, sender, log)
	return NewTaskService(e.repo, e.events, e.lifecycle, &syncQueue{dispatcher: dispatcher}, log)
}

func (e *testEnv) createPending(t *testing.T) *domain.AdScriptTask {
	t.Helper()
	task := &domain.AdScriptTask{
		ReferenceScript:    "AAAAAAAAAAAAAAAAAAAAAAAAA",
		OutcomeDescription: "valid outcome text",
	}
	if err := e.repo.Create(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}
	return task
}

func (e *testEnv) get(t *testing.T, id uint) *domain.AdScriptTask {
	t.Helper()
	task, err := e.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %d: %v", id, err)
	}
	return task
}

func callbackInput(id uint, token, script, analysis string) ports.CallbackInput {
	taskID := int64(id)
	return ports.CallbackInput{
		PathID:      id,
		BearerToken: token,
		TaskID:      &taskID,
		NewScript:   script,
		Analysis:    analysis,
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
