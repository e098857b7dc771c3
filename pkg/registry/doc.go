// Package registry provides the authoritative in-memory store of job state.
//
// The Registry hands out snapshots only. Every mutation of a stored job goes
// through Update, which applies a mutator to a copy under the write lock and
// commits the copy when the mutator returns.
package registry
