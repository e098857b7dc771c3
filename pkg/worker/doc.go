// Package worker provides the Pool type for job processing.
//
// This package includes:
//   - Pool: starts a fixed number of workers sharing one Queue
//   - Worker: one loop that dequeues, executes and resolves jobs
//   - WorkerOption: configuration options for pools
//
// A worker never holds the registry lock while a job executes. Failed
// attempts with budget left go straight back to the tail of the FIFO.
//
// Most users should import the root package github.com/jdziat/simple-job-pool
// which provides access to worker configuration through NewPool().
package worker
