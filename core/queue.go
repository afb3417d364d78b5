package core

import (
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// JobQueue is a mutex-guarded FIFO of jobs for one destination thread.
// Any number of goroutines may Push; a single consumer is expected to Pop.
type JobQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func NewJobQueue() *JobQueue {
	return &JobQueue{
		jobs: make([]Job, 0, defaultQueueCap),
	}
}

func (q *JobQueue) Push(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

// Pop removes the oldest job. It never blocks; ok is false when the queue is empty.
func (q *JobQueue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	job := q.jobs[0]
	// Zero out the slot so the closure can be collected
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.maybeCompactLocked()

	return job, true
}

// PopUpTo removes at most max of the oldest jobs, preserving order.
func (q *JobQueue) PopUpTo(max int) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.jobs)
	if n == 0 || max <= 0 {
		return nil
	}

	if n <= max {
		batch := q.jobs
		q.jobs = make([]Job, 0, defaultQueueCap)
		return batch
	}

	batch := make([]Job, max)
	copy(batch, q.jobs[:max])

	for i := range max {
		q.jobs[i] = nil
	}

	q.jobs = q.jobs[max:]
	q.maybeCompactLocked()

	return batch
}

func (q *JobQueue) maybeCompactLocked() {
	n := len(q.jobs)
	c := cap(q.jobs)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.jobs = make([]Job, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]Job, n, newCap)
	copy(newSlice, q.jobs)
	q.jobs = newSlice
}

func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Clear drops all queued jobs and returns how many were dropped.
func (q *JobQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.jobs)
	q.jobs = make([]Job, 0, defaultQueueCap)
	return n
}
