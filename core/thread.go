package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Thread binds a dedicated goroutine that executes jobs sequentially.
// It guarantees that all jobs posted to it run on the same goroutine (thread affinity),
// in the order they were posted.
//
// Use cases:
// 1. The UI thread: drains the scheduler's UI queue and hosts the worklet runtime
// 2. The JS thread: the call invoker behind Scheduler.ScheduleOnJS
//
// Posting never blocks: ingress is an unbounded JobQueue plus a wake-up signal.
type Thread struct {
	name  string
	queue *JobQueue
	wake  chan struct{}

	// Lifecycle control
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool

	// Observability
	running   atomic.Int32
	executed  atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	lastJobAt atomic.Int64

	cfg *Config
}

var _ CallInvoker = (*Thread)(nil)

// NewThread creates and starts a new Thread.
// It immediately spawns the dedicated goroutine.
func NewThread(name string, cfg *Config) *Thread {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Thread{
		name:    name,
		queue:   NewJobQueue(),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		cfg:     cfg.withDefaults(),
	}

	go t.runLoop()

	return t
}

// Name returns the name of the thread
func (t *Thread) Name() string {
	return t.name
}

// InvokeAsync posts a job for execution on this thread.
// Jobs posted after Stop are rejected.
func (t *Thread) InvokeAsync(job Job) {
	if t.closed.Load() {
		t.reject("thread stopped")
		return
	}

	t.queue.Push(job)
	t.cfg.Metrics.RecordQueueDepth(t.name, t.queue.Len())

	select {
	case t.wake <- struct{}{}:
	default:
		// Loop already has a pending wake-up; the job is queued
	}
}

// PostDelayed posts a job after delay.
// Uses time.AfterFunc so timers do not occupy the thread while waiting.
func (t *Thread) PostDelayed(job Job, delay time.Duration) {
	if t.closed.Load() {
		t.reject("thread stopped")
		return
	}
	time.AfterFunc(delay, func() {
		t.InvokeAsync(job)
	})
}

// PostRepeating posts a job that runs every interval until the handle is stopped
// or the thread is stopped. The first run is immediate.
func (t *Thread) PostRepeating(job Job, interval time.Duration) *RepeatingHandle {
	h := &RepeatingHandle{
		thread:   t,
		job:      job,
		interval: interval,
	}
	t.InvokeAsync(h.tick)
	return h
}

// IsClosed returns true if the thread has been stopped
func (t *Thread) IsClosed() bool {
	return t.closed.Load()
}

// Stop stops the thread after the job currently executing (if any) completes.
// Jobs still queued are dropped; use WaitIdle first for a graceful stop.
//
// Must not be called from the thread itself: Stop waits for the run loop to
// exit, which cannot happen while the calling job is still running. A job that
// needs to stop its own thread calls it from a new goroutine.
func (t *Thread) Stop() {
	t.stopOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()
		<-t.stopped

		if n := t.queue.Clear(); n > 0 {
			t.cfg.Logger.Debug("dropped queued jobs on stop", F("thread", t.name), F("count", n))
		}
	})
}

// runLoop is the core of the thread, it occupies a dedicated goroutine
func (t *Thread) runLoop() {
	defer close(t.stopped)

	for {
		if t.ctx.Err() != nil {
			return
		}

		job, ok := t.queue.Pop()
		if ok {
			t.execute(job)
			continue
		}

		select {
		case <-t.wake:
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *Thread) execute(job Job) {
	t.running.Add(1)
	defer t.running.Add(-1)

	if runJob(t.name, job, t.cfg) {
		t.panics.Add(1)
	}
	t.executed.Add(1)
	t.lastJobAt.Store(time.Now().UnixNano())
}

func (t *Thread) reject(reason string) {
	t.rejected.Add(1)
	t.cfg.RejectedJobHandler.HandleRejectedJob(t.name, reason)
	t.cfg.Metrics.RecordJobRejected(t.name, reason)
}

// runJob executes one job, recording its duration and converting a panic into
// PanicHandler and Metrics calls. It reports whether the job panicked.
func runJob(queue string, job Job, cfg *Config) (panicked bool) {
	start := time.Now()
	defer func() {
		cfg.Metrics.RecordJobDuration(queue, time.Since(start))
		if r := recover(); r != nil {
			panicked = true
			cfg.Metrics.RecordJobPanic(queue, r)
			cfg.PanicHandler.HandlePanic(queue, r, debug.Stack())
		}
	}()
	job()
	return false
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all jobs posted before the call have completed.
// This is implemented by posting a barrier job and waiting for it to execute.
//
// Must not be called from the thread itself.
func (t *Thread) WaitIdle(ctx context.Context) error {
	if t.IsClosed() {
		return ErrThreadClosed
	}

	done := make(chan struct{})
	t.InvokeAsync(func() {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-t.stopped:
		return ErrThreadClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts a barrier job that runs callback on this thread once every
// job posted before it has completed.
func (t *Thread) FlushAsync(callback func()) {
	t.InvokeAsync(callback)
}

// Stats returns a snapshot of the thread state.
func (t *Thread) Stats() ThreadStats {
	var last time.Time
	if ns := t.lastJobAt.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return ThreadStats{
		Name:      t.name,
		Pending:   t.queue.Len(),
		Running:   int(t.running.Load()),
		Executed:  t.executed.Load(),
		Rejected:  t.rejected.Load(),
		Panics:    t.panics.Load(),
		Closed:    t.closed.Load(),
		LastJobAt: last,
	}
}

// =============================================================================
// Repeating Job Handle
// =============================================================================

// RepeatingHandle controls a job posted with PostRepeating.
type RepeatingHandle struct {
	thread   *Thread
	job      Job
	interval time.Duration
	stopped  atomic.Bool
}

// Stop prevents further repetitions. A run already in progress completes.
func (h *RepeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *RepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

func (h *RepeatingHandle) tick() {
	if h.IsStopped() || h.thread.IsClosed() {
		return
	}

	h.job()

	if !h.IsStopped() && !h.thread.IsClosed() {
		h.thread.PostDelayed(h.tick, h.interval)
	}
}
