package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItem_Lifecycle(t *testing.T) {
	item := NewWorkItem("w1", "payload", WorkloadCPUBound, 0, 1, nil)
	assert.Equal(t, WorkStatusPending, item.Status())
	assert.False(t, item.CreatedAt.IsZero())

	item.MarkStarted("worker-2")
	assert.Equal(t, WorkStatusRunning, item.Status())
	assert.Equal(t, "worker-2", item.AssignedWorker())

	item.MarkCompleted(42)
	assert.Equal(t, WorkStatusCompleted, item.Status())
	result, err := item.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestWorkItem_FailureAndRetryReset(t *testing.T) {
	item := NewWorkItem("w2", nil, WorkloadIOBound, 0, 1, nil)

	item.MarkStarted("worker-0")
	item.MarkFailed(errors.New("attempt one"))
	assert.Equal(t, WorkStatusFailed, item.Status())
	assert.Equal(t, 1, item.RetryCount())

	// A retry clears the outcome but keeps the attempt count.
	item.ResetForRetry()
	assert.Equal(t, WorkStatusPending, item.Status())
	assert.Equal(t, 1, item.RetryCount())
	_, err := item.Result()
	assert.NoError(t, err)

	item.MarkStarted("worker-1")
	item.MarkFailed(errors.New("attempt two"))
	assert.Equal(t, 2, item.RetryCount())
	assert.Equal(t, "worker-1", item.AssignedWorker())
}

func TestWorkItem_SnapshotCopies(t *testing.T) {
	deps := []string{"a", "b"}
	item := NewWorkItem("w3", nil, WorkloadMemoryIntensive, 2, 10, deps)

	// The item copied the caller's slice at construction time.
	deps[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, item.Dependencies)

	item.MarkStarted("worker-3")
	snap := item.Snapshot()
	assert.Equal(t, "w3", snap.ID)
	assert.Equal(t, WorkStatusRunning, snap.Status)
	assert.Equal(t, 2, snap.Priority)
	assert.Equal(t, 10, snap.Size)
	assert.Equal(t, []string{"a", "b"}, snap.Dependencies)
	require.NotNil(t, snap.StartedAt)
	assert.Nil(t, snap.CompletedAt)
	assert.Empty(t, snap.Error)

	item.MarkFailed(errors.New("late failure"))
	snap = item.Snapshot()
	assert.Equal(t, WorkStatusFailed, snap.Status)
	assert.Equal(t, "late failure", snap.Error)
	require.NotNil(t, snap.CompletedAt)
}
