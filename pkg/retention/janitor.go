package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/queue"
)

// Janitor removes old terminal jobs from a queue's registry.
type Janitor struct {
	queue    *queue.Queue
	config   Config
	archive  core.Archive
	schedule cron.Schedule
	logger   *slog.Logger
	evicted  atomic.Uint64
}

// New creates a Janitor for q. It fails if the schedule does not parse.
func New(q *queue.Queue, opts ...Option) (*Janitor, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt.applyJanitor(&config)
	}

	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("jobs: invalid retention schedule %q: %w", config.Schedule, err)
	}

	if config.Logger == nil {
		config.Logger = q.Logger()
	}

	return &Janitor{
		queue:    q,
		config:   config,
		archive:  q.Archive(),
		schedule: schedule,
		logger:   config.Logger,
	}, nil
}

// Enabled reports whether a TTL is configured.
func (j *Janitor) Enabled() bool {
	return j.config.TTL > 0
}

// Evicted returns the total number of jobs removed so far.
func (j *Janitor) Evicted() uint64 {
	return j.evicted.Load()
}

// Start runs the janitor on its schedule until ctx is cancelled. A
// disabled janitor just waits for ctx. Runs never overlap.
func (j *Janitor) Start(ctx context.Context) error {
	if !j.Enabled() {
		j.logger.Debug("retention disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(j.schedule, cron.FuncJob(func() {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("retention run failed", "error", err)
		}
	}))

	j.logger.Info("retention started",
		"ttl", j.config.TTL,
		"schedule", j.config.Schedule,
		"archive", j.archive != nil,
	)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce performs a single eviction pass and returns how many jobs left
// the registry. With an archive, jobs are removed only after they were
// written; a failed write leaves them in place for the next run.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	if !j.Enabled() {
		return 0, nil
	}

	reg := j.queue.Registry()
	cutoff := j.queue.Now().Add(-j.config.TTL)

	if j.archive == nil {
		evicted := reg.EvictTerminal(cutoff, j.config.BatchSize)
		ids := make([]uint64, len(evicted))
		for i, job := range evicted {
			ids[i] = job.ID
		}
		j.finish(ids, false)
		return len(ids), nil
	}

	expired := reg.Expired(cutoff, j.config.BatchSize)
	if len(expired) == 0 {
		return 0, nil
	}

	err := retryWithBackoff(ctx, j.config.Retry, func() error {
		return j.archive.Archive(ctx, expired)
	})
	if err != nil {
		return 0, fmt.Errorf("jobs: archive %d jobs: %w", len(expired), err)
	}

	ids := make([]uint64, len(expired))
	for i, job := range expired {
		ids[i] = job.ID
	}
	removed := reg.Remove(ids)
	j.finish(removed, true)
	return len(removed), nil
}

// finish records jobs that actually left the registry.
func (j *Janitor) finish(ids []uint64, archived bool) {
	if len(ids) == 0 {
		return
	}
	j.evicted.Add(uint64(len(ids)))

	j.queue.Emit(&core.JobsEvicted{IDs: ids, Archived: archived, Timestamp: j.queue.Now()})
	j.logger.Info("jobs evicted", "count", len(ids), "archived", archived)
}
