package core

import "context"

// Outcome is the result of a single execution attempt.
type Outcome struct {
	Success bool
	Reason  string
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// Failed returns a failed outcome with the given reason.
func Failed(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Executor performs the work behind a job. Implementations must be safe for
// concurrent use; every worker in a pool calls the same Executor.
type Executor interface {
	Execute(ctx context.Context, job Job) Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job Job) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, job Job) Outcome { return f(ctx, job) }
