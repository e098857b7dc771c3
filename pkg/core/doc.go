// Package core provides the fundamental types and interfaces for the jobs package.
//
// This package contains:
//   - Job data model, JobStatus and snapshot semantics
//   - Executor contract and Outcome
//   - Archive contract for evicted terminal jobs
//   - Event types for queue monitoring
//   - Sentinel errors
//
// Most users should import the root package github.com/jdziat/simple-job-pool
// instead of this package directly.
package core
