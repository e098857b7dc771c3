package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Values(t *testing.T) {
	assert.Equal(t, JobStatus("queued"), StatusQueued)
	assert.Equal(t, JobStatus("processing"), StatusProcessing)
	assert.Equal(t, JobStatus("completed"), StatusCompleted)
	assert.Equal(t, JobStatus("failed"), StatusFailed)
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestJobStatus_Valid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, JobStatus("pending").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJob_CloneDoesNotAlias(t *testing.T) {
	now := time.Now()
	reason := "boom"
	job := Job{
		ID:           7,
		Name:         "build-app",
		Status:       StatusFailed,
		StartedAt:    &now,
		CompletedAt:  &now,
		FailedReason: &reason,
	}

	c := job.Clone()
	*c.StartedAt = now.Add(time.Hour)
	*c.FailedReason = "changed"

	assert.Equal(t, now, *job.StartedAt)
	assert.Equal(t, "boom", *job.FailedReason)
	assert.Equal(t, job.ID, c.ID)
}

func TestJob_Reason(t *testing.T) {
	assert.Empty(t, Job{}.Reason())
	r := "simulated random failure"
	assert.Equal(t, r, Job{FailedReason: &r}.Reason())
}

func TestJob_Attempt(t *testing.T) {
	assert.Equal(t, 1, Job{}.Attempt())
	assert.Equal(t, 4, Job{RetryCount: 3}.Attempt())
}

func TestJob_JSONWireNames(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := json.Marshal(Job{
		ID:         1,
		Name:       "build-app",
		Status:     StatusQueued,
		MaxRetries: 3,
		CreatedAt:  created,
		FinishedAt: &created,
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "queued", m["status"])
	assert.EqualValues(t, 0, m["retry_count"])
	assert.EqualValues(t, 3, m["max_retries"])
	assert.Equal(t, "2024-01-02T03:04:05Z", m["created_at"])
	assert.Nil(t, m["started_at"])
	assert.Nil(t, m["completed_at"])
	assert.Nil(t, m["failed_reason"])
	assert.NotContains(t, m, "FinishedAt")
}
