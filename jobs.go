// Package jobs provides an in-memory job queue processed by a pool of workers.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	q := jobs.New(jobs.Retries(3))
//	pool := jobs.NewPool(q,
//	    jobs.Concurrency(4),
//	    jobs.WithExecutor(jobs.ExecutorFunc(func(ctx context.Context, job jobs.Job) jobs.Outcome {
//	        if err := build(ctx, job.Name); err != nil {
//	            return jobs.Failed(err.Error())
//	        }
//	        return jobs.Succeeded()
//	    })),
//	)
//	go pool.Start(ctx)
//
//	job, _ := q.SubmitJob(ctx, "build-app")
//	snapshot, _ := q.GetJob(ctx, job.ID)
package jobs

import (
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/executor"
	"github.com/jdziat/simple-job-pool/pkg/queue"
	"github.com/jdziat/simple-job-pool/pkg/retention"
	"github.com/jdziat/simple-job-pool/pkg/security"
	"github.com/jdziat/simple-job-pool/pkg/storage"
	"github.com/jdziat/simple-job-pool/pkg/worker"
)

type (
	// Job is a snapshot of a unit of work.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Outcome is the result of one execution attempt.
	Outcome = core.Outcome

	// Executor runs one attempt of a job.
	Executor = core.Executor

	// ExecutorFunc adapts a function to Executor.
	ExecutorFunc = core.ExecutorFunc

	// Archive stores jobs evicted by retention.
	Archive = core.Archive

	// Event is the interface for all queue events.
	Event = core.Event

	JobSubmitted = core.JobSubmitted
	JobStarted   = core.JobStarted
	JobCompleted = core.JobCompleted
	JobRetrying  = core.JobRetrying
	JobFailed    = core.JobFailed
	JobsEvicted  = core.JobsEvicted

	// Queue owns the registry, the FIFO and the id counter.
	Queue = queue.Queue

	// Option configures a Queue.
	Option = queue.Option

	// Stats summarises a Queue.
	Stats = queue.Stats

	// Pool runs workers against a Queue.
	Pool = worker.Pool

	// Worker is one execution loop of a Pool.
	Worker = worker.Worker

	// WorkerOption configures a Pool.
	WorkerOption = worker.WorkerOption

	// Janitor evicts old terminal jobs.
	Janitor = retention.Janitor

	// RetentionOption configures a Janitor.
	RetentionOption = retention.Option

	// GormArchive implements Archive using GORM.
	GormArchive = storage.GormArchive
)

// Status constants
const (
	StatusQueued     = core.StatusQueued
	StatusProcessing = core.StatusProcessing
	StatusCompleted  = core.StatusCompleted
	StatusFailed     = core.StatusFailed
)

// Security limits
const (
	MaxJobNameLength       = security.MaxJobNameLength
	MaxRetries             = security.MaxRetries
	MaxConcurrency         = security.MaxConcurrency
	MaxFailureReasonLength = security.MaxFailureReasonLength
)

// DefaultMaxRetries is the retry budget of jobs submitted to a Queue built
// without Retries.
const DefaultMaxRetries = queue.DefaultMaxRetries

// Error variables
var (
	ErrJobNotFound     = core.ErrJobNotFound
	ErrDuplicateJob    = core.ErrDuplicateJob
	ErrInvalidJobName  = core.ErrInvalidJobName
	ErrJobNameTooLong  = core.ErrJobNameTooLong
	ErrArchiveDisabled = core.ErrArchiveDisabled
	ErrPoolStarted     = worker.ErrPoolStarted
	ErrNoExecutor      = worker.ErrNoExecutor
)

// New creates a Queue.
func New(opts ...Option) *Queue {
	return queue.New(opts...)
}

// Retries sets the retry budget of submitted jobs.
func Retries(n int) Option {
	return queue.Retries(n)
}

// WithArchive makes GetJob fall back to the archive for evicted jobs.
func WithArchive(a Archive) Option {
	return queue.WithArchive(a)
}

// NewPool creates a worker pool for q.
func NewPool(q *Queue, opts ...WorkerOption) *Pool {
	return worker.NewPool(q, opts...)
}

// Concurrency sets the number of workers.
func Concurrency(n int) WorkerOption {
	return worker.Concurrency(n)
}

// PollInterval bounds how long an idle worker waits before checking the FIFO again.
func PollInterval(d time.Duration) WorkerOption {
	return worker.PollInterval(d)
}

// WithExecutor sets the executor workers run jobs with.
func WithExecutor(e Executor) WorkerOption {
	return worker.WithExecutor(e)
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome {
	return core.Succeeded()
}

// Failed returns a failed outcome with the given reason.
func Failed(reason string) Outcome {
	return core.Failed(reason)
}

// NewSimulatedExecutor creates an executor that sleeps for a fixed time and
// fails with a fixed probability.
func NewSimulatedExecutor(d time.Duration, failureRate float64) Executor {
	return executor.NewSimulated(executor.Duration(d), executor.FailureRate(failureRate))
}

// NewGormArchive creates a GORM-backed archive.
func NewGormArchive(db *gorm.DB) *GormArchive {
	return storage.NewGormArchive(db)
}

// NewJanitor creates a retention janitor for q.
func NewJanitor(q *Queue, opts ...RetentionOption) (*Janitor, error) {
	return retention.New(q, opts...)
}

// TTL sets how long terminal jobs stay in the registry.
func TTL(d time.Duration) RetentionOption {
	return retention.TTL(d)
}

// ValidateJobName reports whether name is acceptable for SubmitJob.
func ValidateJobName(name string) error {
	return security.ValidateJobName(name)
}
