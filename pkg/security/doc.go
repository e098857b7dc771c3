// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Input validation for job names
//   - Failure reason sanitization before reasons are stored on jobs
//   - Clamping functions to enforce safe limits on retries and concurrency
//
// Most users should import the root package github.com/jdziat/simple-job-pool
// which re-exports these limits.
package security
