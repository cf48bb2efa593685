package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/adscript/backend/internal/infrastructure/queue"
)

// stateWriteTimeout bounds lifecycle writes made after delivery. They run on a
// context detached from the job so a shutdown still records the outcome.
const stateWriteTimeout = 10 * time.Second

// Details stored on tasks the dispatch queue refused.
const (
	QueueFullDetail    = "dispatch queue is full"
	QueueStoppedDetail = "dispatch queue is shut down"
)

// Sender delivers a task to the workflow.
type Sender interface {
	Send(ctx context.Context, task *domain.AdScriptTask) Outcome
}

// Dispatcher runs one dispatch job: mark processing, deliver, and record a
// failure when delivery does not succeed.
type Dispatcher struct {
	repo      ports.TaskRepository
	lifecycle *LifecycleController
	sender    Sender
	logger    *logger.Logger
}

func NewDispatcher(repo ports.TaskRepository, lifecycle *LifecycleController, sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		lifecycle: lifecycle,
		sender:    sender,
		logger:    log,
	}
}

func (d *Dispatcher) Run(ctx context.Context, job ports.DispatchJob) {
	meta := domain.TransitionMeta{
		RequestID:     job.RequestID,
		CorrelationID: CorrelationID(job.TaskID),
		Source:        "dispatch",
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("dispatch_job_panic", "id", job.TaskID, "panic", r, "stack", string(debug.Stack()))
			d.fail(ctx, job.TaskID, fmt.Sprintf("dispatch panicked: %v", r), meta)
		}
	}()

	task, err := d.repo.GetByID(ctx, job.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			d.logger.Warnw("dispatch_task_missing", "id", job.TaskID)
			return
		}
		d.logger.Errorw("dispatch_load_failed", "id", job.TaskID, "error", err)
		d.fail(ctx, job.TaskID, "failed to load task: "+err.Error(), meta)
		return
	}
	if task.Status.IsTerminal() {
		d.logger.Infow("dispatch_skipped_terminal", "id", task.ID, "status", task.Status)
		return
	}

	result, err := d.lifecycle.MarkProcessing(ctx, task.ID, meta)
	if err != nil {
		d.logger.Errorw("dispatch_mark_processing_failed", "id", task.ID, "error", err)
		d.fail(ctx, task.ID, "failed to mark task processing: "+err.Error(), meta)
		return
	}
	if !result.Applied && result.Task.Status.IsTerminal() {
		return
	}

	outcome := d.sender.Send(ctx, task)
	meta.Attempts = outcome.Attempts
	meta.StatusCode = outcome.StatusCode
	if outcome.Success {
		d.logger.Infow("dispatch_delivered", "id", task.ID, "attempts", outcome.Attempts, "status_code", outcome.StatusCode)
		return
	}

	detail := "dispatch failed"
	if outcome.Err != nil {
		detail = outcome.Err.Error()
	}
	d.fail(ctx, task.ID, detail, meta)
}

// Reject fails a task that never reached a worker.
func (d *Dispatcher) Reject(ctx context.Context, job ports.DispatchJob, detail string) {
	d.fail(ctx, job.TaskID, detail, domain.TransitionMeta{
		RequestID:     job.RequestID,
		CorrelationID: CorrelationID(job.TaskID),
		Source:        "dispatch",
	})
}

func (d *Dispatcher) fail(ctx context.Context, id uint, detail string, meta domain.TransitionMeta) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()

	if _, err := d.lifecycle.Fail(writeCtx, id, detail, meta); err != nil {
		d.logger.Errorw("dispatch_fail_write_failed", "id", id, "error", err)
	}
}

// PoolQueue feeds dispatch jobs to a worker pool.
type PoolQueue struct {
	pool       *queue.WorkerPool
	dispatcher *Dispatcher
	logger     *logger.Logger
}

var _ ports.DispatchQueue = (*PoolQueue)(nil)

func NewPoolQueue(pool *queue.WorkerPool, dispatcher *Dispatcher, log *logger.Logger) *PoolQueue {
	return &PoolQueue{
		pool:       pool,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// Enqueue never blocks. A saturated or stopped pool fails the task at once
// and reports ErrDispatchQueueFull.
func (q *PoolQueue) Enqueue(job ports.DispatchJob) error {
	err := q.pool.Submit(func(ctx context.Context) {
		q.dispatcher.Run(ctx, job)
	})
	if err == nil {
		q.logger.Debugw("dispatch_enqueued", "id", job.TaskID, "pending", q.pool.Pending())
		return nil
	}

	detail := QueueFullDetail
	if errors.Is(err, queue.ErrPoolStopped) {
		detail = QueueStoppedDetail
	}
	q.logger.Warnw("dispatch_enqueue_rejected", "id", job.TaskID, "error", err)
	q.dispatcher.Reject(context.Background(), job, detail)
	return fmt.Errorf("%w: %v", ErrDispatchQueueFull, err)
}
