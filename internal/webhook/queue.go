// ABOUTME: Bounded job queue that runs function-call handlers off the request path
// ABOUTME: A buffered channel caps backlog and a weighted semaphore caps concurrent jobs

package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/2389/session-gateway/internal/metrics"
)

var (
	ErrQueueFull    = errors.New("generation queue full")
	ErrQueueStopped = errors.New("generation queue stopped")
)

const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 64
	DefaultJobTimeout = 60 * time.Second
)

// Job is one queued function call.
type Job struct {
	ID         string
	Function   *Function
	Call       *FunctionCall
	EnqueuedAt time.Time
}

// QueueConfig sizes a Queue. Zero values select the defaults.
type QueueConfig struct {
	Workers    int
	Size       int
	JobTimeout time.Duration
}

// Queue runs jobs on at most Workers goroutines with at most Size waiting.
type Queue struct {
	jobs       chan *Job
	semaphore  *semaphore.Weighted
	jobTimeout time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics

	pending atomic.Int64
	active  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewQueue creates a Queue. Call Start before Enqueue.
func NewQueue(cfg QueueConfig, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultQueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:       make(chan *Job, cfg.Size),
		semaphore:  semaphore.NewWeighted(int64(cfg.Workers)),
		jobTimeout: cfg.JobTimeout,
		logger:     logger.With("component", "webhook.queue"),
		metrics:    m,
	}
}

// Start launches the dispatch loop. Jobs run under contexts derived from ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.run()
}

// Enqueue adds job without blocking. Returns ErrQueueFull when the backlog is
// at capacity and ErrQueueStopped after Stop.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopped {
		return ErrQueueStopped
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	q.pending.Add(1)
	select {
	case q.jobs <- job:
		q.metrics.QueueDepth(q.Len())
		return nil
	default:
		q.pending.Add(-1)
		return ErrQueueFull
	}
}

// run hands each job to its own goroutine once a semaphore slot is free.
func (q *Queue) run() {
	defer q.wg.Done()
	for job := range q.jobs {
		if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
			q.pending.Add(-1)
			q.logger.Warn("dropping queued job on shutdown", "job_id", job.ID, "function", job.Function.Name)
			continue
		}
		q.active.Add(1)
		q.pending.Add(-1)
		q.wg.Add(1)
		go func(job *Job) {
			defer q.wg.Done()
			defer q.semaphore.Release(1)
			defer q.active.Add(-1)
			q.process(job)
		}(job)
	}
}

func (q *Queue) process(job *Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Function.Handler(ctx, job.Call)
	elapsed := time.Since(start)

	if err != nil {
		q.logger.Error("function call failed",
			"job_id", job.ID,
			"function", job.Function.Name,
			"label", job.Function.Label,
			"duration", elapsed,
			"error", err,
		)
		q.metrics.GenerationJob(job.Function.Label, metrics.OutcomeFailure, elapsed)
	} else {
		q.logger.Info("function call completed",
			"job_id", job.ID,
			"function", job.Function.Name,
			"label", job.Function.Label,
			"duration", elapsed,
			"waited", start.Sub(job.EnqueuedAt),
		)
		q.metrics.GenerationJob(job.Function.Label, metrics.OutcomeSuccess, elapsed)
	}
	q.metrics.QueueDepth(q.Len() - 1)
}

// Len returns the number of jobs waiting or running.
func (q *Queue) Len() int {
	return int(q.pending.Load() + q.active.Load())
}

// WaitIdle blocks until no jobs are waiting or running, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.Len() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Stop rejects new jobs and lets queued and running jobs finish. If ctx ends
// first, remaining jobs are cancelled and Stop waits for them to return.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("queue drain interrupted, cancelling jobs", "remaining", q.Len())
		q.cancel()
		<-done
	}
	q.cancel()
}
