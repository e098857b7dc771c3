package retention

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/queue"
	"github.com/jdziat/simple-job-pool/pkg/storage"
)

// flakyArchive fails the first n writes.
type flakyArchive struct {
	mu       sync.Mutex
	failures int
	calls    atomic.Int32
	jobs     map[uint64]core.Job
}

func (a *flakyArchive) Archive(ctx context.Context, jobs []core.Job) error {
	a.calls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return errors.New("database is locked")
	}
	if a.jobs == nil {
		a.jobs = make(map[uint64]core.Job)
	}
	for _, j := range jobs {
		a.jobs[j.ID] = j
	}
	return nil
}

func (a *flakyArchive) GetArchived(ctx context.Context, id uint64) (core.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[id]
	if !ok {
		return core.Job{}, core.ErrJobNotFound
	}
	return j, nil
}

func submit(t *testing.T, q *queue.Queue, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		job, err := q.SubmitJob(context.Background(), "job")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	return ids
}

func finish(t *testing.T, q *queue.Queue, id uint64, status core.JobStatus, at time.Time) {
	t.Helper()
	_, err := q.Registry().Update(id, func(j *core.Job) {
		j.Status = status
		j.StartedAt = &at
		j.FinishedAt = &at
		if status == core.StatusCompleted {
			j.CompletedAt = &at
		}
	})
	require.NoError(t, err)
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(queue.New(), Schedule("not a schedule"))
	assert.Error(t, err)
}

func TestJanitor_DisabledByDefault(t *testing.T) {
	q := queue.New()
	ids := submit(t, q, 1)
	finish(t, q, ids[0], core.StatusCompleted, time.Now().Add(-time.Hour))

	j, err := New(q)
	require.NoError(t, err)
	assert.False(t, j.Enabled())

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, q.Registry().Len())
}

func TestJanitor_EvictsOnlyOldTerminalJobs(t *testing.T) {
	q := queue.New()
	ids := submit(t, q, 5)
	old := time.Now().Add(-time.Hour)

	finish(t, q, ids[0], core.StatusCompleted, old)
	finish(t, q, ids[1], core.StatusFailed, old)
	finish(t, q, ids[2], core.StatusCompleted, time.Now())
	_, err := q.Registry().Update(ids[3], func(j *core.Job) { j.Status = core.StatusProcessing })
	require.NoError(t, err)

	events := q.Events()
	defer q.Unsubscribe(events)

	j, err := New(q, TTL(time.Minute))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), j.Evicted())

	for _, id := range ids[:2] {
		_, err := q.GetJob(context.Background(), id)
		assert.ErrorIs(t, err, core.ErrJobNotFound)
	}
	for _, id := range ids[2:] {
		_, err := q.GetJob(context.Background(), id)
		assert.NoError(t, err)
	}

	select {
	case e := <-events:
		evicted, ok := e.(*core.JobsEvicted)
		require.True(t, ok)
		assert.Equal(t, ids[:2], evicted.IDs)
		assert.False(t, evicted.Archived)
	case <-time.After(time.Second):
		t.Fatal("no eviction event")
	}
}

func TestJanitor_BatchSize(t *testing.T) {
	q := queue.New()
	ids := submit(t, q, 3)
	for _, id := range ids {
		finish(t, q, id, core.StatusCompleted, time.Now().Add(-time.Hour))
	}

	j, err := New(q, TTL(time.Minute), BatchSize(2))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, q.Registry().Len())

	n, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, q.Registry().Len())
}

func TestJanitor_ArchivesBeforeRemoving(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	archive, err := storage.NewGormArchiveWithPool(db, storage.MaxOpenConns(1))
	require.NoError(t, err)
	require.NoError(t, archive.Migrate(context.Background()))

	q := queue.New(queue.WithArchive(archive))
	ids := submit(t, q, 2)
	finish(t, q, ids[0], core.StatusCompleted, time.Now().Add(-time.Hour))

	j, err := New(q, TTL(time.Minute))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, q.Registry().Len())

	// Still visible through the archive.
	got, err := q.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)

	count, err := archive.Count(context.Background(), core.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestJanitor_RetriesArchiveWrites(t *testing.T) {
	archive := &flakyArchive{failures: 2}
	q := queue.New(queue.WithArchive(archive))
	ids := submit(t, q, 1)
	finish(t, q, ids[0], core.StatusFailed, time.Now().Add(-time.Hour))

	j, err := New(q, TTL(time.Minute), WithRetry(fastRetry(3)))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), archive.calls.Load())

	got, err := q.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
}

func TestJanitor_ArchiveFailureKeepsJobs(t *testing.T) {
	archive := &flakyArchive{failures: 100}
	q := queue.New(queue.WithArchive(archive))
	ids := submit(t, q, 1)
	finish(t, q, ids[0], core.StatusCompleted, time.Now().Add(-time.Hour))

	j, err := New(q, TTL(time.Minute), WithRetry(fastRetry(2)))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, q.Registry().Len())
	assert.Zero(t, j.Evicted())

	got, err := q.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
}

func TestJanitor_ArchivedJobsStayVisible(t *testing.T) {
	archive := &flakyArchive{}
	q := queue.New(queue.WithArchive(archive))
	ids := submit(t, q, 3)
	for _, id := range ids {
		finish(t, q, id, core.StatusCompleted, time.Now().Add(-time.Hour))
	}

	j, err := New(q, TTL(time.Minute))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, q.Registry().Len())

	for _, id := range ids {
		got, err := q.GetJob(context.Background(), id)
		require.NoError(t, err, "job %d", id)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, core.StatusCompleted, got.Status)
	}
}

// racingArchive removes one job from the registry while a write is in
// flight, like an overlapping janitor run would.
type racingArchive struct {
	flakyArchive
	q     *queue.Queue
	steal uint64
}

func (a *racingArchive) Archive(ctx context.Context, jobs []core.Job) error {
	a.q.Registry().Remove([]uint64{a.steal})
	return a.flakyArchive.Archive(ctx, jobs)
}

func TestJanitor_EventListsOnlyRemovedJobs(t *testing.T) {
	archive := &racingArchive{}
	q := queue.New(queue.WithArchive(archive))
	archive.q = q
	ids := submit(t, q, 3)
	for _, id := range ids {
		finish(t, q, id, core.StatusCompleted, time.Now().Add(-time.Hour))
	}
	archive.steal = ids[1]

	events := q.Events()
	defer q.Unsubscribe(events)

	j, err := New(q, TTL(time.Minute))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), j.Evicted())

	select {
	case e := <-events:
		evicted, ok := e.(*core.JobsEvicted)
		require.True(t, ok)
		assert.Equal(t, []uint64{ids[0], ids[2]}, evicted.IDs)
		assert.True(t, evicted.Archived)
	case <-time.After(time.Second):
		t.Fatal("no eviction event")
	}
}

func TestJanitor_LogsThroughQueueLogger(t *testing.T) {
	var buf bytes.Buffer
	q := queue.New(queue.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	ids := submit(t, q, 1)
	finish(t, q, ids[0], core.StatusCompleted, time.Now().Add(-time.Hour))

	j, err := New(q, TTL(time.Minute))
	require.NoError(t, err)

	_, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "jobs evicted")
}

func TestJanitor_UsesQueueClock(t *testing.T) {
	var now atomic.Value
	now.Store(time.Now())
	q := queue.New(queue.WithClock(func() time.Time { return now.Load().(time.Time) }))

	ids := submit(t, q, 1)
	finish(t, q, ids[0], core.StatusCompleted, q.Now())

	j, err := New(q, TTL(time.Hour))
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	now.Store(now.Load().(time.Time).Add(2 * time.Hour))
	n, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJanitor_StartRunsOnSchedule(t *testing.T) {
	q := queue.New()
	ids := submit(t, q, 1)
	finish(t, q, ids[0], core.StatusCompleted, time.Now().Add(-time.Hour))

	j, err := New(q, TTL(time.Minute), Schedule("@every 1s"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return q.Registry().Len() == 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_StartDisabledWaitsForCancel(t *testing.T) {
	j, err := New(queue.New())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, j.Start(ctx))
}
