package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/registry"
	"github.com/jdziat/simple-job-pool/pkg/security"
)

// Queue is the application context shared by the submission path, the
// lookup path and every worker. It owns the id counter, the registry and
// the FIFO.
//
// Lock order is submitMu, then the registry, then the FIFO. The registry and
// FIFO locks are never held at the same time.
type Queue struct {
	registry *registry.Registry
	fifo     *FIFO
	archive  core.Archive
	logger   *slog.Logger
	now      func() time.Time

	maxRetries int
	nextID     atomic.Uint64
	submitted  atomic.Uint64

	// submitMu makes insert+enqueue one unit so FIFO order matches id order.
	submitMu sync.Mutex

	mu sync.RWMutex

	// Hooks
	onSubmit   []func(context.Context, core.Job)
	onStart    []func(context.Context, core.Job)
	onComplete []func(context.Context, core.Job)
	onFail     []func(context.Context, core.Job, string)
	onRetry    []func(context.Context, core.Job, int, string)

	// Event stream
	eventSubs []chan core.Event
}

// Stats summarises the registry and FIFO.
type Stats struct {
	Jobs       map[core.JobStatus]int `json:"jobs"`
	QueueDepth int                    `json:"queue_depth"`
	Registered int                    `json:"registered"`
	Submitted  uint64                 `json:"submitted"`
}

// New creates a Queue.
func New(opts ...Option) *Queue {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}

	return &Queue{
		registry:   registry.New(),
		fifo:       NewFIFO(),
		archive:    o.Archive,
		logger:     o.Logger,
		now:        o.Clock,
		maxRetries: o.MaxRetries,
	}
}

// SubmitJob allocates the next id, registers a queued job and appends it to
// the FIFO. The returned value is a snapshot of the new job.
func (q *Queue) SubmitJob(ctx context.Context, name string) (core.Job, error) {
	if err := security.ValidateJobName(name); err != nil {
		return core.Job{}, err
	}

	q.submitMu.Lock()
	job := core.Job{
		ID:         q.nextID.Add(1),
		Name:       name,
		Status:     core.StatusQueued,
		MaxRetries: q.maxRetries,
		CreatedAt:  q.now(),
	}
	if err := q.registry.Insert(job); err != nil {
		q.submitMu.Unlock()
		return core.Job{}, fmt.Errorf("jobs: failed to submit: %w", err)
	}
	q.submitted.Add(1)
	// Emit before the id becomes visible to workers so subscribers see
	// JobSubmitted ahead of JobStarted.
	q.Emit(&core.JobSubmitted{Job: job, Timestamp: job.CreatedAt})
	q.fifo.Enqueue(job.ID)
	q.submitMu.Unlock()

	q.logger.InfoContext(ctx, "job received",
		slog.Uint64("job_id", job.ID),
		slog.String("name", job.Name),
	)

	q.CallSubmitHooks(ctx, job)
	return job, nil
}

// GetJob returns a snapshot of the job. Jobs evicted by retention are looked
// up in the archive when one is configured.
func (q *Queue) GetJob(ctx context.Context, id uint64) (core.Job, error) {
	job, err := q.registry.Get(id)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, core.ErrJobNotFound) || q.archive == nil {
		return core.Job{}, err
	}

	job, err = q.archive.GetArchived(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			return core.Job{}, core.ErrJobNotFound
		}
		return core.Job{}, fmt.Errorf("jobs: archive lookup: %w", err)
	}
	return job, nil
}

// ListJobs returns registry snapshots ordered by id.
func (q *Queue) ListJobs(status core.JobStatus, limit int) []core.Job {
	return q.registry.List(status, limit)
}

// Stats returns current counts.
func (q *Queue) Stats() Stats {
	counts := q.registry.Counts()
	registered := 0
	for _, n := range counts {
		registered += n
	}
	return Stats{
		Jobs:       counts,
		QueueDepth: q.fifo.Len(),
		Registered: registered,
		Submitted:  q.submitted.Load(),
	}
}

// Registry returns the job registry.
func (q *Queue) Registry() *registry.Registry {
	return q.registry
}

// FIFO returns the queue of pending job ids.
func (q *Queue) FIFO() *FIFO {
	return q.fifo
}

// Archive returns the configured archive or nil.
func (q *Queue) Archive() core.Archive {
	return q.archive
}

// MaxRetries returns the retry budget given to new jobs.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Now returns the current time from the queue's clock.
func (q *Queue) Now() time.Time {
	return q.now()
}

// Logger returns the queue's logger.
func (q *Queue) Logger() *slog.Logger {
	return q.logger
}

// OnSubmit registers a callback for when a job is accepted.
func (q *Queue) OnSubmit(fn func(context.Context, core.Job)) {
	q.mu.Lock()
	q.onSubmit = append(q.onSubmit, fn)
	q.mu.Unlock()
}

// OnJobStart registers a callback for when a job starts.
func (q *Queue) OnJobStart(fn func(context.Context, core.Job)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnJobComplete registers a callback for when a job completes successfully.
func (q *Queue) OnJobComplete(fn func(context.Context, core.Job)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a callback for when a job fails permanently.
func (q *Queue) OnJobFail(fn func(context.Context, core.Job, string)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnRetry registers a callback for when a failed attempt is re-queued.
func (q *Queue) OnRetry(fn func(context.Context, core.Job, int, string)) {
	q.mu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed. After Unsubscribe returns, no further events
// will be sent to the channel.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// CallSubmitHooks calls all registered submit hooks.
func (q *Queue) CallSubmitHooks(ctx context.Context, job core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, core.Job), len(q.onSubmit))
	copy(hooks, q.onSubmit)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallStartHooks calls all registered start hooks.
func (q *Queue) CallStartHooks(ctx context.Context, job core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, core.Job), len(q.onStart))
	copy(hooks, q.onStart)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (q *Queue) CallCompleteHooks(ctx context.Context, job core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, core.Job), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, job core.Job, reason string) {
	q.mu.RLock()
	hooks := make([]func(context.Context, core.Job, string), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, reason)
	}
}

// CallRetryHooks calls all registered retry hooks.
func (q *Queue) CallRetryHooks(ctx context.Context, job core.Job, attempt int, reason string) {
	q.mu.RLock()
	hooks := make([]func(context.Context, core.Job, int, string), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, attempt, reason)
	}
}
