// Package queue provides the job queue and the application context shared by workers.
package queue

import (
	"io"
	"log/slog"
	"time"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/security"
)

// Options holds configuration for a Queue.
type Options struct {
	MaxRetries int
	Archive    core.Archive
	Logger     *slog.Logger
	Clock      func() time.Time
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		MaxRetries: DefaultMaxRetries,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:      time.Now,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Retries sets the retry budget assigned to every new job.
// Values are clamped to [0, security.MaxRetries].
func Retries(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxRetries = security.ClampRetries(n)
	})
}

// WithArchive enables lookups of jobs that retention moved out of the registry.
func WithArchive(a core.Archive) Option {
	return optionFunc(func(o *Options) {
		o.Archive = a
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	})
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	})
}

// DefaultMaxRetries is the retry budget used when none is configured.
const DefaultMaxRetries = 3
