// Package queue provides the Queue type, the application context of the job pool.
//
// This package includes:
//   - FIFO: the shared first-in first-out queue of job ids
//   - Queue: id allocation, submission, lookup, stats
//   - Hook registration for job lifecycle events
//   - Event subscription for monitoring
//
// Most users should import the root package github.com/jdziat/simple-job-pool
// which re-exports Queue and all option functions.
package queue
