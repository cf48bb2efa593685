package queue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/adscript/backend/internal/infrastructure/logger"
)

var (
	ErrQueueFull   = errors.New("queue: worker pool queue is full")
	ErrPoolStopped = errors.New("queue: worker pool is stopped")
)

// Job is a unit of background work. ctx is cancelled when the pool is
// stopped without draining.
type Job func(ctx context.Context)

type WorkerPool struct {
	workers int
	jobs    chan Job
	log     *logger.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(workers, queueSize int, log *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	wp := &WorkerPool{
		workers: workers,
		jobs:    make(chan Job, queueSize),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return wp
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		wp.run(id, job)
	}
}

func (wp *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.Errorw("worker_job_panic", "worker", id, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	job(wp.ctx)
}

// Submit queues job without blocking.
func (wp *WorkerPool) Submit(job Job) error {
	if job == nil {
		return nil
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of queued jobs not yet picked up by a worker.
func (wp *WorkerPool) Pending() int {
	return len(wp.jobs)
}

// StopWait stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, running jobs see their context cancelled and StopWait
// returns ctx.Err() once the workers exit.
func (wp *WorkerPool) StopWait(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		return ctx.Err()
	}
}
