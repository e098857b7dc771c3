package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/simple-job-pool/pkg/core"
)

// Registry maps job ids to their current state.
type Registry struct {
	mu   sync.RWMutex
	jobs map[uint64]*core.Job
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{jobs: make(map[uint64]*core.Job)}
}

// Insert stores a new job. The id must not already exist.
func (r *Registry) Insert(job core.Job) error {
	c := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[c.ID]; ok {
		return fmt.Errorf("%w: %d", core.ErrDuplicateJob, c.ID)
	}
	r.jobs[c.ID] = &c
	return nil
}

// Get returns a snapshot of the job with the given id.
func (r *Registry) Get(id uint64) (core.Job, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.RUnlock()
		return core.Job{}, core.ErrJobNotFound
	}
	snap := j.Clone()
	r.mu.RUnlock()
	return snap, nil
}

// Update atomically applies fn to the stored job and returns the resulting
// snapshot. If fn panics the stored job is left unchanged and an error
// wrapping core.ErrMutatorPanic is returned.
func (r *Registry) Update(id uint64, fn func(*core.Job)) (core.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return core.Job{}, core.ErrJobNotFound
	}

	next := j.Clone()
	if err := apply(fn, &next); err != nil {
		return core.Job{}, err
	}
	next.ID = id
	stored := next.Clone()
	r.jobs[id] = &stored
	return next, nil
}

func apply(fn func(*core.Job), j *core.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", core.ErrMutatorPanic, &core.PanicError{Value: rec})
		}
	}()
	fn(j)
	return nil
}

// Len returns the number of stored jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Counts returns the number of stored jobs per status.
func (r *Registry) Counts() map[core.JobStatus]int {
	counts := make(map[core.JobStatus]int, len(core.Statuses))
	for _, s := range core.Statuses {
		counts[s] = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		counts[j.Status]++
	}
	return counts
}

// List returns snapshots ordered by id. An empty status matches every job.
// A limit <= 0 means no limit.
func (r *Registry) List(status core.JobStatus, limit int) []core.Job {
	r.mu.RLock()
	out := make([]core.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Expired returns snapshots of up to limit terminal jobs that finished
// before the given time, oldest id first. A limit <= 0 means no limit.
func (r *Registry) Expired(before time.Time, limit int) []core.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.expiredLocked(before, limit)
	out := make([]core.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.jobs[id].Clone())
	}
	return out
}

// EvictTerminal removes up to limit terminal jobs that finished before the
// given time, oldest id first, and returns their snapshots. Queued and
// processing jobs are never evicted. A limit <= 0 means no limit.
func (r *Registry) EvictTerminal(before time.Time, limit int) []core.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.expiredLocked(before, limit)
	out := make([]core.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.jobs[id])
		delete(r.jobs, id)
	}
	return out
}

// Remove deletes the given jobs if they are terminal and returns the ids
// it removed. Unknown ids and live jobs are skipped.
func (r *Registry) Remove(ids []uint64) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []uint64
	for _, id := range ids {
		j, ok := r.jobs[id]
		if !ok || !j.Status.Terminal() {
			continue
		}
		delete(r.jobs, id)
		removed = append(removed, id)
	}
	return removed
}

func (r *Registry) expiredLocked(before time.Time, limit int) []uint64 {
	var ids []uint64
	for id, j := range r.jobs {
		if !j.Status.Terminal() || j.FinishedAt == nil || !j.FinishedAt.Before(before) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
