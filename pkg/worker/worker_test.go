package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/executor"
	"github.com/jdziat/simple-job-pool/pkg/queue"
)

// startPool starts a pool in the background and stops it on test cleanup.
func startPool(t *testing.T, q *queue.Queue, opts ...WorkerOption) *Pool {
	t.Helper()
	opts = append([]WorkerOption{PollInterval(10 * time.Millisecond)}, opts...)
	p := NewPool(q, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("pool did not stop")
		}
	})
	return p
}

func waitForStatus(t *testing.T, q *queue.Queue, id uint64, status core.JobStatus) core.Job {
	t.Helper()
	var job core.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(context.Background(), id)
		return err == nil && job.Status == status
	}, 5*time.Second, 5*time.Millisecond, "job %d never reached %s", id, status)
	return job
}

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(queue.New())
	assert.Equal(t, DefaultConcurrency, p.config.Concurrency)
	assert.Equal(t, DefaultPollInterval, p.config.PollInterval)
	assert.NotEmpty(t, p.config.WorkerID)
	assert.Len(t, p.Workers(), 4)
}

func TestNewPool_WorkerIDs(t *testing.T) {
	p := NewPool(queue.New(), Concurrency(3), WorkerID("node-a"))
	require.Len(t, p.Workers(), 3)
	assert.Equal(t, "node-a-0", p.Workers()[0].ID())
	assert.Equal(t, "node-a-2", p.Workers()[2].ID())
}

func TestPool_StartWithoutExecutor(t *testing.T) {
	p := NewPool(queue.New())
	err := p.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoExecutor)
}

func TestPool_StartTwice(t *testing.T) {
	q := queue.New()
	p := startPool(t, q, WithExecutor(executor.AlwaysSucceed()))

	require.Eventually(t, p.Running, time.Second, time.Millisecond)

	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolStarted)
}

func TestPool_StopReturnsContextError(t *testing.T) {
	p := NewPool(queue.New(), WithExecutor(executor.AlwaysSucceed()), PollInterval(5*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.Running())
}

func TestWorker_CompletesJob(t *testing.T) {
	q := queue.New()
	startPool(t, q, WithExecutor(executor.AlwaysSucceed()))

	submitted, err := q.SubmitJob(context.Background(), "build-app")
	require.NoError(t, err)

	job := waitForStatus(t, q, submitted.ID, core.StatusCompleted)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.False(t, job.StartedAt.After(*job.CompletedAt))
	assert.False(t, job.CreatedAt.After(*job.StartedAt))
	assert.Equal(t, 0, job.RetryCount)
	assert.Nil(t, job.FailedReason)
	assert.Equal(t, 0, q.FIFO().Len())
}

func TestWorker_MarksProcessingDuringExecution(t *testing.T) {
	q := queue.New()
	release := make(chan struct{})
	entered := make(chan uint64, 1)
	startPool(t, q, Concurrency(1), WithExecutor(core.ExecutorFunc(func(ctx context.Context, job core.Job) core.Outcome {
		entered <- job.ID
		<-release
		return core.Succeeded()
	})))

	submitted, err := q.SubmitJob(context.Background(), "slow")
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never called")
	}

	// Lookups are not blocked by the executing job.
	job, err := q.GetJob(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	close(release)
	waitForStatus(t, q, submitted.ID, core.StatusCompleted)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	q := queue.New()
	startPool(t, q, WithExecutor(executor.FailTimes(2, "flaky")))

	submitted, err := q.SubmitJob(context.Background(), "flaky")
	require.NoError(t, err)

	job := waitForStatus(t, q, submitted.ID, core.StatusCompleted)
	assert.Equal(t, 2, job.RetryCount)
	assert.Nil(t, job.FailedReason)
	assert.NotNil(t, job.CompletedAt)
}

func TestWorker_FailsAfterRetryBudget(t *testing.T) {
	q := queue.New()
	var attempts atomic.Int32
	startPool(t, q, WithExecutor(core.ExecutorFunc(func(context.Context, core.Job) core.Outcome {
		attempts.Add(1)
		return core.Failed("simulated random failure")
	})))

	submitted, err := q.SubmitJob(context.Background(), "doomed")
	require.NoError(t, err)

	job := waitForStatus(t, q, submitted.ID, core.StatusFailed)
	assert.Equal(t, job.MaxRetries, job.RetryCount)
	require.NotNil(t, job.FailedReason)
	assert.Equal(t, "simulated random failure", *job.FailedReason)
	assert.Nil(t, job.CompletedAt)

	// Exactly max_retries+1 attempts, and never re-enqueued afterwards.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(job.MaxRetries+1), attempts.Load())
	assert.Equal(t, 0, q.FIFO().Len())
}

func TestWorker_ZeroRetryBudget(t *testing.T) {
	q := queue.New(queue.Retries(0))
	startPool(t, q, WithExecutor(executor.AlwaysFail("")))

	submitted, err := q.SubmitJob(context.Background(), "once")
	require.NoError(t, err)

	job := waitForStatus(t, q, submitted.ID, core.StatusFailed)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, DefaultFailureReason, job.Reason())
}

func TestWorker_RecoversExecutorPanic(t *testing.T) {
	q := queue.New(queue.Retries(0))
	startPool(t, q, Concurrency(1), WithExecutor(core.ExecutorFunc(func(_ context.Context, job core.Job) core.Outcome {
		if job.Name == "explode" {
			panic("kaboom")
		}
		return core.Succeeded()
	})))

	bad, err := q.SubmitJob(context.Background(), "explode")
	require.NoError(t, err)
	good, err := q.SubmitJob(context.Background(), "fine")
	require.NoError(t, err)

	job := waitForStatus(t, q, bad.ID, core.StatusFailed)
	assert.Equal(t, "panic: kaboom", job.Reason())

	// The same worker keeps going.
	waitForStatus(t, q, good.ID, core.StatusCompleted)
}

func TestWorker_SanitizesFailureReason(t *testing.T) {
	q := queue.New(queue.Retries(0))
	startPool(t, q, WithExecutor(executor.AlwaysFail("bad\x00 input")))

	submitted, err := q.SubmitJob(context.Background(), "x")
	require.NoError(t, err)

	job := waitForStatus(t, q, submitted.ID, core.StatusFailed)
	assert.Equal(t, "bad input", job.Reason())
}

func TestWorker_FIFOOrder(t *testing.T) {
	q := queue.New()

	var mu sync.Mutex
	var order []uint64
	exec := core.ExecutorFunc(func(_ context.Context, job core.Job) core.Outcome {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return core.Succeeded()
	})

	var ids []uint64
	for i := 0; i < 10; i++ {
		job, err := q.SubmitJob(context.Background(), "ordered")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	startPool(t, q, Concurrency(1), WithExecutor(exec))
	waitForStatus(t, q, ids[len(ids)-1], core.StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order)
}

func TestWorker_RetryGoesBehindPendingJobs(t *testing.T) {
	q := queue.New()

	var mu sync.Mutex
	var order []uint64
	exec := core.ExecutorFunc(func(_ context.Context, job core.Job) core.Outcome {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		if job.ID == 1 && job.RetryCount == 0 {
			return core.Failed("first attempt")
		}
		return core.Succeeded()
	})

	for i := 0; i < 3; i++ {
		_, err := q.SubmitJob(context.Background(), "job")
		require.NoError(t, err)
	}

	startPool(t, q, Concurrency(1), WithExecutor(exec))
	waitForStatus(t, q, 1, core.StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3, 1}, order)
}

func TestWorker_EventsFollowStateMachine(t *testing.T) {
	q := queue.New(queue.Retries(2))
	events := q.Events()
	defer q.Unsubscribe(events)

	startPool(t, q, WithExecutor(executor.FailTimes(1, "once")))

	ok, err := q.SubmitJob(context.Background(), "recovers")
	require.NoError(t, err)
	waitForStatus(t, q, ok.ID, core.StatusCompleted)

	var seq []core.JobStatus
	timeout := time.After(2 * time.Second)
	for len(seq) < 5 {
		select {
		case e := <-events:
			switch ev := e.(type) {
			case *core.JobSubmitted:
				seq = append(seq, ev.Job.Status)
			case *core.JobStarted:
				seq = append(seq, ev.Job.Status)
			case *core.JobRetrying:
				assert.Equal(t, 1, ev.Attempt)
				assert.Equal(t, "once", ev.Reason)
				seq = append(seq, ev.Job.Status)
			case *core.JobCompleted:
				seq = append(seq, ev.Job.Status)
			}
		case <-timeout:
			t.Fatalf("incomplete event sequence: %v", seq)
		}
	}

	assert.Equal(t, []core.JobStatus{
		core.StatusQueued,
		core.StatusProcessing,
		core.StatusQueued,
		core.StatusProcessing,
		core.StatusCompleted,
	}, seq)
}

func TestWorker_HooksCalled(t *testing.T) {
	q := queue.New(queue.Retries(1))

	var started, retried, failed atomic.Int32
	q.OnJobStart(func(context.Context, core.Job) { started.Add(1) })
	q.OnRetry(func(context.Context, core.Job, int, string) { retried.Add(1) })
	q.OnJobFail(func(context.Context, core.Job, string) { failed.Add(1) })

	startPool(t, q, WithExecutor(executor.AlwaysFail("nope")))

	job, err := q.SubmitJob(context.Background(), "x")
	require.NoError(t, err)
	waitForStatus(t, q, job.ID, core.StatusFailed)

	require.Eventually(t, func() bool { return failed.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), started.Load())
	assert.Equal(t, int32(1), retried.Load())
}

func TestWorker_SkipsStaleQueueEntries(t *testing.T) {
	q := queue.New()
	var calls atomic.Int32
	startPool(t, q, Concurrency(1), WithExecutor(core.ExecutorFunc(func(context.Context, core.Job) core.Outcome {
		calls.Add(1)
		return core.Succeeded()
	})))

	// An id that was never registered and an already completed job.
	q.FIFO().Enqueue(999)
	job, err := q.SubmitJob(context.Background(), "real")
	require.NoError(t, err)
	waitForStatus(t, q, job.ID, core.StatusCompleted)
	q.FIFO().Enqueue(job.ID)

	require.Eventually(t, func() bool { return q.FIFO().Len() == 0 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPool_ConcurrentLoad(t *testing.T) {
	q := queue.New(queue.Retries(3))
	exec := executor.NewSimulated(executor.Duration(time.Millisecond), executor.FailureRate(0.3), executor.Seed(1))
	p := startPool(t, q, Concurrency(8), WithExecutor(exec))

	const k = 100
	ids := make(chan uint64, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := q.SubmitJob(context.Background(), "load")
			if err == nil {
				ids <- job.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var all []uint64
	for id := range ids {
		all = append(all, id)
	}
	require.Len(t, all, k)

	require.Eventually(t, func() bool {
		s := q.Stats()
		return s.Jobs[core.StatusCompleted]+s.Jobs[core.StatusFailed] == k
	}, 10*time.Second, 10*time.Millisecond)

	for _, id := range all {
		job, err := q.GetJob(context.Background(), id)
		require.NoError(t, err)
		assert.LessOrEqual(t, job.RetryCount, job.MaxRetries)
		switch job.Status {
		case core.StatusCompleted:
			require.NotNil(t, job.CompletedAt)
			require.NotNil(t, job.StartedAt)
			assert.False(t, job.StartedAt.After(*job.CompletedAt))
			assert.Nil(t, job.FailedReason)
		case core.StatusFailed:
			assert.Equal(t, job.MaxRetries, job.RetryCount)
			assert.NotEmpty(t, job.Reason())
			assert.Nil(t, job.CompletedAt)
		default:
			t.Fatalf("job %d in non-terminal status %s", id, job.Status)
		}
	}

	var processed uint64
	for _, w := range p.Workers() {
		processed += w.Processed()
	}
	assert.GreaterOrEqual(t, processed, uint64(k))
}
