// Package executor provides Executor implementations for the job pool.
package executor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jdziat/simple-job-pool/pkg/core"
)

// Defaults for the simulated executor.
const (
	DefaultDuration    = 5 * time.Second
	DefaultFailureRate = 0.3
	DefaultReason      = "simulated random failure"
)

// Simulated sleeps for a fixed duration and then fails with a fixed
// probability.
type Simulated struct {
	duration    time.Duration
	failureRate float64
	reason      string

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Simulated executor.
type Option func(*Simulated)

// Duration sets how long each attempt takes.
func Duration(d time.Duration) Option {
	return func(s *Simulated) {
		if d >= 0 {
			s.duration = d
		}
	}
}

// FailureRate sets the probability in [0, 1] that an attempt fails.
func FailureRate(p float64) Option {
	return func(s *Simulated) {
		switch {
		case p < 0:
			s.failureRate = 0
		case p > 1:
			s.failureRate = 1
		default:
			s.failureRate = p
		}
	}
}

// Reason sets the failure reason reported on failed attempts.
func Reason(r string) Option {
	return func(s *Simulated) {
		if r != "" {
			s.reason = r
		}
	}
}

// Seed makes the outcome sequence deterministic.
func Seed(seed uint64) Option {
	return func(s *Simulated) {
		s.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// NewSimulated creates a simulated executor.
func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{
		duration:    DefaultDuration,
		failureRate: DefaultFailureRate,
		reason:      DefaultReason,
		rnd:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute implements core.Executor.
func (s *Simulated) Execute(ctx context.Context, job core.Job) core.Outcome {
	if s.duration > 0 {
		timer := time.NewTimer(s.duration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return core.Failed(ctx.Err().Error())
		case <-timer.C:
		}
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	if roll < s.failureRate {
		return core.Failed(s.reason)
	}
	return core.Succeeded()
}

// AlwaysSucceed returns an executor whose attempts always succeed.
func AlwaysSucceed() core.Executor {
	return core.ExecutorFunc(func(context.Context, core.Job) core.Outcome {
		return core.Succeeded()
	})
}

// AlwaysFail returns an executor whose attempts always fail with reason.
func AlwaysFail(reason string) core.Executor {
	return core.ExecutorFunc(func(context.Context, core.Job) core.Outcome {
		return core.Failed(reason)
	})
}

// FailTimes returns an executor that fails the first n attempts of every job
// and succeeds afterwards.
func FailTimes(n int, reason string) core.Executor {
	return core.ExecutorFunc(func(_ context.Context, job core.Job) core.Outcome {
		if job.RetryCount < n {
			return core.Failed(reason)
		}
		return core.Succeeded()
	})
}
