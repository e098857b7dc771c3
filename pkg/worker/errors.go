package worker

import "errors"

var (
	ErrPoolStarted = errors.New("jobs: worker pool already started")
	ErrNoExecutor  = errors.New("jobs: worker pool has no executor")
)

// DefaultFailureReason is recorded when an executor fails without a reason.
const DefaultFailureReason = "job failed"
