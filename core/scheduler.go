package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// maxFlushPasses bounds Flush when UI and JS jobs keep scheduling each other.
const maxFlushPasses = 8

// ErrFlushIncomplete is returned by Flush when the queues kept refilling.
var ErrFlushIncomplete = errors.New("scheduler: queues did not quiesce")

// Scheduler decouples who enqueues work from who executes it, for exactly two
// destinations: the UI thread and the JS thread.
//
// The UI queue is owned by the scheduler and drained one job at a time by
// TriggerUI, which the host calls on the UI thread. JS jobs are handed to the
// platform call invoker set with SetJSCallInvoker.
//
// The Set* association methods are one-time wiring performed before any job is
// scheduled; they are not safe to call concurrently with scheduling.
type Scheduler struct {
	uiJobs *JobQueue

	jsInvoker CallInvoker
	uiInvoker CallInvoker
	owner     RuntimeOwner

	cfg *Config

	executedUI  atomic.Int64
	scheduledJS atomic.Int64
	panics      atomic.Int64
}

// NewScheduler creates a scheduler. cfg may be nil.
func NewScheduler(cfg *Config) *Scheduler {
	return &Scheduler{
		uiJobs: NewJobQueue(),
		cfg:    cfg.withDefaults(),
	}
}

// SetJSCallInvoker wires the invoker that runs jobs on the JS thread.
func (s *Scheduler) SetJSCallInvoker(invoker CallInvoker) {
	if s.jsInvoker != nil {
		panic(fmt.Errorf("%w: js call invoker", ErrAlreadyWired))
	}
	s.jsInvoker = invoker
}

// SetUICallInvoker wires an optional invoker for the UI thread. When set, every
// ScheduleOnUI also posts one TriggerUI to it, so each enqueued job gets its own
// wake-up without waiting for the next display refresh.
func (s *Scheduler) SetUICallInvoker(invoker CallInvoker) {
	if s.uiInvoker != nil {
		panic(fmt.Errorf("%w: ui call invoker", ErrAlreadyWired))
	}
	s.uiInvoker = invoker
}

// SetRuntimeManager associates the runtime manager whose runtime the UI jobs use.
func (s *Scheduler) SetRuntimeManager(owner RuntimeOwner) {
	if s.owner != nil {
		panic(fmt.Errorf("%w: runtime manager", ErrAlreadyWired))
	}
	s.owner = owner
}

// RuntimeManager returns the associated runtime manager, or nil.
func (s *Scheduler) RuntimeManager() RuntimeOwner {
	return s.owner
}

// Logger returns the logger the scheduler was configured with.
func (s *Scheduler) Logger() Logger {
	return s.cfg.Logger
}

// Metrics returns the metrics sink the scheduler was configured with.
func (s *Scheduler) Metrics() Metrics {
	return s.cfg.Metrics
}

// ScheduleOnUI appends job to the UI queue. It never runs the job synchronously.
func (s *Scheduler) ScheduleOnUI(job Job) {
	s.uiJobs.Push(job)
	s.cfg.Metrics.RecordQueueDepth(QueueUI, s.uiJobs.Len())

	if s.uiInvoker != nil {
		s.uiInvoker.InvokeAsync(func() { s.TriggerUI() })
	}
}

// ScheduleOnJS hands job to the JS call invoker. Calling it before
// SetJSCallInvoker is a setup error and panics with ErrNoJSCallInvoker.
func (s *Scheduler) ScheduleOnJS(job Job) {
	if s.jsInvoker == nil {
		panic(ErrNoJSCallInvoker)
	}
	s.scheduledJS.Add(1)
	s.jsInvoker.InvokeAsync(job)
}

// TriggerUI pops and runs at most one job from the UI queue. It must be called
// on the UI thread. An empty queue is a no-op. It reports whether a job ran.
func (s *Scheduler) TriggerUI() bool {
	job, ok := s.uiJobs.Pop()
	if !ok {
		return false
	}
	s.cfg.Metrics.RecordQueueDepth(QueueUI, s.uiJobs.Len())
	s.runUI(job)
	return true
}

// DrainUI runs the jobs queued at the time of the call and returns how many ran.
// Jobs enqueued while draining are left for later triggers.
// It must be called on the UI thread.
func (s *Scheduler) DrainUI() int {
	batch := s.uiJobs.PopUpTo(s.uiJobs.Len())
	if len(batch) == 0 {
		return 0
	}
	s.cfg.Metrics.RecordQueueDepth(QueueUI, s.uiJobs.Len())

	for _, job := range batch {
		s.runUI(job)
	}
	return len(batch)
}

func (s *Scheduler) runUI(job Job) {
	if runJob(QueueUI, job, s.cfg) {
		s.panics.Add(1)
	}
	s.executedUI.Add(1)
}

// PendingUI returns the number of jobs waiting in the UI queue.
func (s *Scheduler) PendingUI() int {
	return s.uiJobs.Len()
}

// Flush is the quiescence barrier used before tearing down a runtime. It drains
// the UI queue on the UI invoker (or on the calling goroutine when none is set),
// waits for the JS invoker to pass a barrier job, then drains the UI side once
// more. It returns once a full pass found no new UI or JS work.
//
// Must not be called from the UI or JS thread.
func (s *Scheduler) Flush(ctx context.Context) error {
	for pass := 0; pass < maxFlushPasses; pass++ {
		if _, err := s.flushUI(ctx); err != nil {
			return err
		}
		js := s.scheduledJS.Load()
		if err := s.flushJS(ctx); err != nil {
			return err
		}
		ran, err := s.flushUI(ctx)
		if err != nil {
			return err
		}
		if ran == 0 && s.scheduledJS.Load() == js {
			return nil
		}
	}
	return ErrFlushIncomplete
}

func (s *Scheduler) flushUI(ctx context.Context) (int, error) {
	if s.uiInvoker == nil {
		return s.DrainUI(), nil
	}

	var ran int
	done := make(chan struct{})
	s.uiInvoker.InvokeAsync(func() {
		defer close(done)
		ran = s.DrainUI()
	})
	if err := waitDone(ctx, done); err != nil {
		return 0, err
	}
	return ran, nil
}

func (s *Scheduler) flushJS(ctx context.Context) error {
	if s.jsInvoker == nil {
		return nil
	}

	done := make(chan struct{})
	s.jsInvoker.InvokeAsync(func() {
		close(done)
	})
	return waitDone(ctx, done)
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		PendingUI:   s.uiJobs.Len(),
		ExecutedUI:  s.executedUI.Load(),
		ScheduledJS: s.scheduledJS.Load(),
		Panics:      s.panics.Load(),
	}
	if s.owner != nil {
		stats.Runtime = s.owner.Name()
		stats.RuntimeDestroyed = s.owner.Destroyed()
	}
	return stats
}
