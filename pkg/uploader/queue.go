// Package uploader implements the priority upload queue and worker pool
// that post segments through the net package. Priority 1 is highest; a
// failed item is retried with its priority bumped down by one (never
// past 10) until max_retries is exhausted.
package uploader

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"driftshare.io/driftshare/pkg/types"
)

const (
	PriorityCritical   = 1
	PriorityHigh       = 2
	PriorityNormal     = 5
	PriorityLow        = 8
	PriorityBackground = 10
)

// item is one queue entry. It embeds the job record the store persists so
// worker state transitions can be written straight back out.
type item struct {
	job   *types.Job
	index int // heap.Interface bookkeeping
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].job.QueuedAt.Before(h[j].job.QueuedAt)
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a thread-safe priority queue of upload jobs, backed by a binary
// heap, with pause/resume semantics and a condition variable wakeup for
// workers blocked waiting on work.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   itemHeap
	byID   map[string]*item
	paused bool
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{byID: make(map[string]*item)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues a job and wakes one waiting worker.
func (q *Queue) Add(job *types.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now()
	}
	job.State = types.JobQueued
	it := &item{job: job}
	heap.Push(&q.heap, it)
	q.byID[job.ID] = it
	q.cond.Signal()
}

// Next blocks until a job is available (and the queue isn't paused), the
// queue is closed, or ctx is cancelled. It leases the job to workerID and
// marks it running.
func (q *Queue) Next(ctx context.Context, workerID string) (*types.Job, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed || ctx.Err() != nil {
			return nil, false
		}
		if !q.paused && len(q.heap) > 0 {
			it := heap.Pop(&q.heap).(*item)
			delete(q.byID, it.job.ID)
			it.job.State = types.JobRunning
			it.job.WorkerID = workerID
			return it.job, true
		}
		q.cond.Wait()
	}
}

// Complete marks a job completed; it is no longer queued.
func (q *Queue) Complete(job *types.Job) {
	job.State = types.JobCompleted
}

// Fail classifies a failure: if attempt_count < max_retries, the job goes
// back on the queue with state retrying and priority bumped down by one
// (never past PriorityBackground); otherwise it is marked failed for good.
func (q *Queue) Fail(job *types.Job, errMsg string) {
	job.Error = errMsg
	job.AttemptCount++

	if job.AttemptCount < job.MaxRetries {
		job.State = types.JobRetrying
		if job.Priority < PriorityBackground {
			job.Priority++
		}
		q.Add(job)
		return
	}
	job.State = types.JobFailed
}

// Cancel removes a job from the queue and marks it cancelled if it is still
// waiting. A job already leased to a worker is no longer tracked by the
// queue, so Cancel leaves it running and does not change its state.
func (q *Queue) Cancel(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if it, ok := q.byID[jobID]; ok {
		heap.Remove(&q.heap, it.index)
		delete(q.byID, jobID)
		it.job.State = types.JobCancelled
		return
	}
}

// Pause stops workers from leasing new jobs; in-flight jobs run to completion.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume lets workers lease jobs again.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Close stops the queue permanently; blocked Next calls return immediately.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Status summarizes queue depth for monitoring.
type Status struct {
	Queued int
	Paused bool
}

func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{Queued: len(q.heap), Paused: q.paused}
}
