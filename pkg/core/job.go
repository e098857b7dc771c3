// Package core provides the domain models and interfaces for the jobs package.
package core

import (
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []JobStatus{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition happens from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents a unit of work tracked by the registry.
type Job struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	Status       JobStatus  `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	FailedReason *string    `json:"failed_reason"`

	// FinishedAt records when the job reached a terminal status. It is used
	// by retention and is not part of the wire format.
	FinishedAt *time.Time `json:"-"`
}

// Clone returns a snapshot of the job that shares no memory with j.
func (j Job) Clone() Job {
	c := j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	if j.FailedReason != nil {
		r := *j.FailedReason
		c.FailedReason = &r
	}
	return c
}

// Attempt returns the 1-based number of the current or most recent attempt.
func (j Job) Attempt() int {
	return j.RetryCount + 1
}

// Reason returns the failure reason or "" if none is recorded.
func (j Job) Reason() string {
	if j.FailedReason == nil {
		return ""
	}
	return *j.FailedReason
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
