package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJobQueue_FIFO verifies jobs come out in push order
// Main test items:
// 1. Push several jobs
// 2. Pop returns them oldest first
// 3. Pop on an empty queue reports false instead of blocking
func TestJobQueue_FIFO(t *testing.T) {
	q := NewJobQueue()
	var order []int

	for i := range 5 {
		q.Push(func() { order = append(order, i) })
	}
	require.Equal(t, 5, q.Len())

	for {
		job, ok := q.Pop()
		if !ok {
			break
		}
		job()
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Zero(t, q.Len())

	job, ok := q.Pop()
	assert.False(t, ok)
	assert.Nil(t, job)
}

// TestJobQueue_PopUpTo verifies batch pops keep order and leave the rest queued
func TestJobQueue_PopUpTo(t *testing.T) {
	q := NewJobQueue()
	var order []int
	for i := range 10 {
		q.Push(func() { order = append(order, i) })
	}

	batch := q.PopUpTo(4)
	require.Len(t, batch, 4)
	assert.Equal(t, 6, q.Len())
	for _, job := range batch {
		job()
	}

	rest := q.PopUpTo(100)
	require.Len(t, rest, 6)
	for _, job := range rest {
		job()
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.Nil(t, q.PopUpTo(1))
	assert.Nil(t, q.PopUpTo(0))
}

// TestJobQueue_BatchDoesNotAliasQueue verifies a drained batch is not overwritten by later pushes
func TestJobQueue_BatchDoesNotAliasQueue(t *testing.T) {
	q := NewJobQueue()
	var got []string
	q.Push(func() { got = append(got, "a") })

	batch := q.PopUpTo(10)
	q.Push(func() { got = append(got, "b") })

	require.Len(t, batch, 1)
	batch[0]()
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, q.Len())
}

// TestJobQueue_ConcurrentPush verifies concurrent producers neither lose nor duplicate jobs
// Main test items:
// 1. N goroutines push M jobs each
// 2. Every job is popped exactly once
// 3. Jobs from the same producer keep their relative order
func TestJobQueue_ConcurrentPush(t *testing.T) {
	const producers = 8
	const perProducer = 500

	q := NewJobQueue()
	type mark struct{ producer, seq int }
	var popped []mark

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				q.Push(func() { popped = append(popped, mark{p, i}) })
			}
		}()
	}
	wg.Wait()

	require.Equal(t, producers*perProducer, q.Len())
	for {
		job, ok := q.Pop()
		if !ok {
			break
		}
		job()
	}

	require.Len(t, popped, producers*perProducer)
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for _, m := range popped {
		assert.Equal(t, last[m.producer]+1, m.seq, "producer %d out of order", m.producer)
		last[m.producer] = m.seq
	}
}

// TestJobQueue_ClearAndCompact verifies Clear drops jobs and large queues shrink after draining
func TestJobQueue_ClearAndCompact(t *testing.T) {
	q := NewJobQueue()
	for range 200 {
		q.Push(func() {})
	}
	for range 190 {
		_, ok := q.Pop()
		require.True(t, ok)
	}

	q.mu.Lock()
	c := cap(q.jobs)
	q.mu.Unlock()
	assert.Less(t, c, 200, "queue should compact after draining")

	assert.Equal(t, 10, q.Clear())
	assert.Zero(t, q.Len())
}
