// Package worker provides the worker pool for the jobs package.
package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/security"
)

// Defaults for a Pool.
const (
	DefaultConcurrency  = 4
	DefaultPollInterval = 500 * time.Millisecond
)

// WorkerOption configures a Pool.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	WorkerID     string // prefix for the ids of the pool's workers
	Executor     core.Executor
	Logger       *slog.Logger
}

// Concurrency sets the number of workers.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// PollInterval sets the longest time an idle worker waits before checking
// the queue again.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WorkerID sets the prefix used for worker ids.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// WithExecutor sets the executor that performs each job's work.
func WithExecutor(e core.Executor) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if e != nil {
			c.Executor = e
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if l != nil {
			c.Logger = l
		}
	})
}
