// Package jobs runs background work in-process with bounded retries.
// Work for one owner executes serially so two scans never race on the same
// ledger; owners run concurrently with each other.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of background work.
type Job func(ctx context.Context) error

type task struct {
	name string
	job  Job
}

// Runner dispatches jobs onto per-owner workers.
type Runner struct {
	// MaxAttempts bounds retries per job; default 3.
	MaxAttempts int
	// Backoff between attempts; default 2s.
	Backoff time.Duration
	Logger  *slog.Logger

	mu      sync.Mutex
	queues  map[string]chan task
	wg      sync.WaitGroup
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewRunner(maxAttempts int, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		MaxAttempts: maxAttempts,
		Logger:      logger,
		queues:      make(map[string]chan task),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

const queueDepth = 64

// Enqueue schedules a job on the owner's serial queue. It returns false when
// the runner is shut down or the owner's queue is full.
func (r *Runner) Enqueue(ownerID, name string, job Job) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	q, ok := r.queues[ownerID]
	if !ok {
		q = make(chan task, queueDepth)
		r.queues[ownerID] = q
		r.wg.Add(1)
		go r.worker(ownerID, q)
	}
	r.mu.Unlock()

	select {
	case q <- task{name: name, job: job}:
		return true
	default:
		r.logger().Warn("job queue full", "owner", ownerID, "job", name)
		return false
	}
}

func (r *Runner) worker(ownerID string, q chan task) {
	defer r.wg.Done()
	for {
		select {
		case <-r.baseCtx.Done():
			return
		case t, ok := <-q:
			if !ok {
				return
			}
			r.run(ownerID, t)
		}
	}
}

func (r *Runner) run(ownerID string, t task) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := t.job(r.baseCtx)
		if err == nil {
			return
		}
		r.logger().Warn("job failed", "owner", ownerID, "job", t.name, "attempt", attempt, "error", err)
		if attempt == attempts {
			r.logger().Error("job exhausted retries", "owner", ownerID, "job", t.name)
			return
		}
		select {
		case <-r.baseCtx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// Shutdown stops accepting work and drains the queues: already-enqueued jobs
// still run to completion before the base context is cancelled.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, q := range r.queues {
		close(q)
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.cancel()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
