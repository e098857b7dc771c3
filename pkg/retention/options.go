package retention

import (
	"log/slog"
	"time"
)

const (
	// DefaultSchedule runs the janitor once a minute.
	DefaultSchedule = "@every 1m"
	// DefaultBatchSize bounds how many jobs one run removes.
	DefaultBatchSize = 1000
)

// Config holds janitor settings.
type Config struct {
	// TTL is how long a terminal job stays in the registry. Zero disables
	// the janitor.
	TTL time.Duration

	// Schedule is a cron expression or descriptor such as "@every 1m".
	Schedule string

	// BatchSize is the maximum number of jobs removed per run.
	BatchSize int

	Retry  RetryConfig
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Schedule:  DefaultSchedule,
		BatchSize: DefaultBatchSize,
		Retry:     DefaultRetryConfig(),
	}
}

// Option configures a Janitor.
type Option interface {
	applyJanitor(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) applyJanitor(c *Config) { f(c) }

// TTL sets how long terminal jobs are kept.
func TTL(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d < 0 {
			d = 0
		}
		c.TTL = d
	})
}

// Schedule sets the cron schedule.
func Schedule(spec string) Option {
	return optionFunc(func(c *Config) {
		c.Schedule = spec
	})
}

// BatchSize sets the per-run limit. Values <= 0 remove without limit.
func BatchSize(n int) Option {
	return optionFunc(func(c *Config) {
		c.BatchSize = n
	})
}

// WithRetry sets the backoff used for archive writes.
func WithRetry(r RetryConfig) Option {
	return optionFunc(func(c *Config) {
		if r.MaxAttempts < 1 {
			r.MaxAttempts = 1
		}
		c.Retry = r
	})
}

// WithLogger sets the logger. The queue's logger is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}
