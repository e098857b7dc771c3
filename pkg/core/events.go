package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// JobSubmitted is emitted when a job is accepted and queued.
type JobSubmitted struct {
	Job       Job
	Timestamp time.Time
}

func (*JobSubmitted) eventMarker() {}

// JobStarted is emitted when a worker marks a job as processing.
type JobStarted struct {
	Job       Job
	WorkerID  string
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes successfully.
type JobCompleted struct {
	Job       Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobRetrying is emitted when a failed attempt is re-queued.
type JobRetrying struct {
	Job       Job
	Attempt   int
	Reason    string
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}

// JobFailed is emitted when a job exhausts its retry budget.
type JobFailed struct {
	Job       Job
	Reason    string
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobsEvicted is emitted when terminal jobs leave the registry.
type JobsEvicted struct {
	IDs       []uint64
	Archived  bool
	Timestamp time.Time
}

func (*JobsEvicted) eventMarker() {}
