package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/queue"
	"github.com/jdziat/simple-job-pool/pkg/security"
)

// Pool runs a fixed set of workers against one Queue.
type Pool struct {
	queue   *queue.Queue
	config  WorkerConfig
	logger  *slog.Logger
	workers []*Worker

	mu      sync.Mutex
	started bool
	running atomic.Bool
}

// NewPool creates a pool for the given queue.
func NewPool(q *queue.Queue, opts ...WorkerOption) *Pool {
	config := WorkerConfig{
		Concurrency:  DefaultConcurrency,
		PollInterval: DefaultPollInterval,
		WorkerID:     uuid.New().String(),
		Logger:       q.Logger(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	p := &Pool{
		queue:  q,
		config: config,
		logger: config.Logger,
	}
	p.workers = make([]*Worker, config.Concurrency)
	for i := range p.workers {
		p.workers[i] = &Worker{
			id:           fmt.Sprintf("%s-%d", config.WorkerID, i),
			queue:        q,
			executor:     config.Executor,
			pollInterval: config.PollInterval,
			logger:       config.Logger,
		}
	}
	return p
}

// Workers returns the pool's workers.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Running reports whether Start is currently executing.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Start runs every worker and blocks until ctx is cancelled. Jobs that are
// executing when ctx is cancelled run to completion and are resolved before
// Start returns.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrPoolStarted
	}
	if p.config.Executor == nil {
		p.mu.Unlock()
		return ErrNoExecutor
	}
	p.started = true
	p.mu.Unlock()

	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("worker pool started",
		slog.Int("workers", len(p.workers)),
		slog.Duration("poll_interval", p.config.PollInterval),
	)

	g := new(errgroup.Group)
	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	err := g.Wait()

	p.logger.Info("worker pool stopped")
	return err
}

// Worker is one execution loop.
type Worker struct {
	id           string
	queue        *queue.Queue
	executor     core.Executor
	pollInterval time.Duration
	logger       *slog.Logger
	processed    atomic.Uint64
}

// ID returns the worker id.
func (w *Worker) ID() string {
	return w.id
}

// Processed returns the number of attempts this worker has resolved.
func (w *Worker) Processed() uint64 {
	return w.processed.Load()
}

// Run dequeues and processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	fifo := w.queue.FIFO()
	w.logger.Debug("worker started", "worker_id", w.id)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, ok := fifo.Dequeue()
		if !ok {
			if err := w.idle(ctx, fifo); err != nil {
				return err
			}
			continue
		}

		w.processJob(ctx, id)
	}
}

// idle waits for an enqueue notification, the poll interval or shutdown.
func (w *Worker) idle(ctx context.Context, fifo *queue.FIFO) error {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fifo.Ready():
	case <-timer.C:
	}
	return nil
}

func (w *Worker) processJob(ctx context.Context, id uint64) {
	// In-flight jobs are not cancelled by pool shutdown.
	ctx = context.WithoutCancel(ctx)
	reg := w.queue.Registry()

	startTime := w.queue.Now()
	stale := false
	job, err := reg.Update(id, func(j *core.Job) {
		if j.Status != core.StatusQueued {
			stale = true
			return
		}
		j.Status = core.StatusProcessing
		j.StartedAt = &startTime
	})
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			w.logger.Warn("dequeued job not in registry", "worker_id", w.id, "job_id", id)
		} else {
			w.logger.Error("failed to mark job processing", "worker_id", w.id, "job_id", id, "error", err)
		}
		return
	}
	if stale {
		w.logger.Warn("dequeued job is not queued", "worker_id", w.id, "job_id", id, "status", job.Status)
		return
	}

	w.logger.Info("processing job",
		"worker_id", w.id,
		"job_id", id,
		"name", job.Name,
		"attempt", job.Attempt(),
	)

	w.queue.CallStartHooks(ctx, job)
	w.queue.Emit(&core.JobStarted{Job: job, WorkerID: w.id, Timestamp: startTime})

	outcome := w.execute(ctx, job)
	w.resolve(ctx, id, outcome, startTime)
	w.processed.Add(1)
}

func (w *Worker) execute(ctx context.Context, job core.Job) (outcome core.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = core.Failed((&core.PanicError{Value: r}).Error())
		}
	}()

	return w.executor.Execute(ctx, job)
}

// resolve applies the attempt outcome in a single registry update and
// re-enqueues the job when retry budget remains.
func (w *Worker) resolve(ctx context.Context, id uint64, outcome core.Outcome, startTime time.Time) {
	finished := w.queue.Now()
	duration := finished.Sub(startTime)

	reason := security.SanitizeFailureReason(outcome.Reason)
	if reason == "" {
		reason = DefaultFailureReason
	}

	requeue := false
	job, err := w.queue.Registry().Update(id, func(j *core.Job) {
		switch {
		case outcome.Success:
			j.Status = core.StatusCompleted
			j.CompletedAt = &finished
			j.FinishedAt = &finished
		case j.RetryCount < j.MaxRetries:
			j.RetryCount++
			j.Status = core.StatusQueued
			j.StartedAt = nil
			j.FailedReason = nil
			requeue = true
		default:
			j.Status = core.StatusFailed
			j.FailedReason = &reason
			j.FinishedAt = &finished
		}
	})
	if err != nil {
		w.logger.Error("failed to resolve job", "worker_id", w.id, "job_id", id, "error", err)
		return
	}

	switch job.Status {
	case core.StatusCompleted:
		w.logger.Info("job completed", "worker_id", w.id, "job_id", id, "duration", duration)
		w.queue.CallCompleteHooks(ctx, job)
		w.queue.Emit(&core.JobCompleted{Job: job, Duration: duration, Timestamp: finished})

	case core.StatusQueued:
		w.logger.Warn("job re-queued for retry",
			"worker_id", w.id,
			"job_id", id,
			"retry", job.RetryCount,
			"max_retries", job.MaxRetries,
			"reason", reason,
		)
		w.queue.CallRetryHooks(ctx, job, job.RetryCount, reason)
		w.queue.Emit(&core.JobRetrying{
			Job:       job,
			Attempt:   job.RetryCount,
			Reason:    reason,
			Duration:  duration,
			Timestamp: finished,
		})
		// The id must not be in the FIFO while the job is processing, and
		// JobRetrying must precede the next JobStarted.
		if requeue {
			w.queue.FIFO().Enqueue(id)
		}

	case core.StatusFailed:
		w.logger.Error("job permanently failed",
			"worker_id", w.id,
			"job_id", id,
			"retries", job.RetryCount,
			"reason", reason,
		)
		w.queue.CallFailHooks(ctx, job, reason)
		w.queue.Emit(&core.JobFailed{Job: job, Reason: reason, Duration: duration, Timestamp: finished})
	}
}
