package uploader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/types"
)

func newJob(id string, priority int) *types.Job {
	return &types.Job{ID: id, Kind: "upload", EntityID: id, Priority: priority, MaxRetries: 3}
}

func TestQueueOrdersByPriorityThenAge(t *testing.T) {
	q := NewQueue()
	q.Add(newJob("low", PriorityLow))
	q.Add(newJob("critical", PriorityCritical))
	q.Add(newJob("normal", PriorityNormal))

	ctx := context.Background()
	first, ok := q.Next(ctx, "w1")
	require.True(t, ok)
	assert.Equal(t, "critical", first.ID)
	assert.Equal(t, types.JobRunning, first.State)

	second, ok := q.Next(ctx, "w1")
	require.True(t, ok)
	assert.Equal(t, "normal", second.ID)

	third, ok := q.Next(ctx, "w1")
	require.True(t, ok)
	assert.Equal(t, "low", third.ID)
}

func TestNextBlocksUntilJobAdded(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	done := make(chan *types.Job, 1)
	go func() {
		job, ok := q.Next(ctx, "w1")
		if ok {
			done <- job
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Add(newJob("late", PriorityNormal))

	select {
	case job := <-done:
		assert.Equal(t, "late", job.ID)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Add")
	}
}

func TestNextReturnsFalseWhenContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Next(ctx, "w1")
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on context cancellation")
	}
}

func TestNextReturnsFalseWhenQueueClosed(t *testing.T) {
	q := NewQueue()
	q.Close()

	job, ok := q.Next(context.Background(), "w1")
	assert.False(t, ok)
	assert.Nil(t, job)
}

func TestPauseStopsLeasingUntilResumed(t *testing.T) {
	q := NewQueue()
	q.Add(newJob("a", PriorityNormal))
	q.Pause()

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Next(context.Background(), "w1")
		result <- ok
	}()

	select {
	case <-result:
		t.Fatal("Next returned while queue was paused")
	case <-time.After(50 * time.Millisecond):
	}

	q.Resume()
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not resume after Resume")
	}
}

func TestFailRetriesWithBumpedDownPriorityUntilMaxRetries(t *testing.T) {
	q := NewQueue()
	job := newJob("retry-me", PriorityCritical)
	job.MaxRetries = 2
	q.Add(job)

	leased, ok := q.Next(context.Background(), "w1")
	require.True(t, ok)

	q.Fail(leased, "transient failure")
	assert.Equal(t, types.JobRetrying, leased.State)
	assert.Equal(t, PriorityCritical+1, leased.Priority)
	assert.Equal(t, 1, leased.AttemptCount)

	leased2, ok := q.Next(context.Background(), "w1")
	require.True(t, ok)
	assert.Equal(t, "retry-me", leased2.ID)

	q.Fail(leased2, "still failing")
	assert.Equal(t, types.JobFailed, leased2.State)
	assert.Equal(t, 2, leased2.AttemptCount)
}

func TestFailNeverBumpsPriorityPastBackground(t *testing.T) {
	q := NewQueue()
	job := newJob("background-job", PriorityBackground)
	job.MaxRetries = 5
	q.Add(job)

	leased, ok := q.Next(context.Background(), "w1")
	require.True(t, ok)

	q.Fail(leased, "fail")
	assert.Equal(t, PriorityBackground, leased.Priority)
}

func TestCancelRemovesQueuedJob(t *testing.T) {
	q := NewQueue()
	job := newJob("cancel-me", PriorityNormal)
	q.Add(job)

	q.Cancel("cancel-me")
	assert.Equal(t, types.JobCancelled, job.State)
	assert.Equal(t, 0, q.Status().Queued)
}

func TestStatusReportsQueueDepthAndPauseState(t *testing.T) {
	q := NewQueue()
	q.Add(newJob("a", PriorityNormal))
	q.Add(newJob("b", PriorityNormal))
	q.Pause()

	status := q.Status()
	assert.Equal(t, 2, status.Queued)
	assert.True(t, status.Paused)
}
