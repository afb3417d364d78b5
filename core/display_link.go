package core

import (
	"sync"
	"time"
)

// DefaultFrameInterval is roughly one 60Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameCallback receives the frame timestamp in milliseconds since the link started.
type FrameCallback func(timestampMs float64)

// DisplayLink stands in for the platform display-refresh hook. Once per frame, on
// the UI thread, it calls Scheduler.TriggerUI and then the frame callback.
// It does not own the scheduler or the thread.
type DisplayLink struct {
	thread    *Thread
	scheduler *Scheduler
	interval  time.Duration
	onFrame   FrameCallback

	mu     sync.Mutex
	handle *RepeatingHandle
}

// NewDisplayLink creates a stopped display link. onFrame may be nil.
func NewDisplayLink(thread *Thread, scheduler *Scheduler, interval time.Duration, onFrame FrameCallback) *DisplayLink {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &DisplayLink{
		thread:    thread,
		scheduler: scheduler,
		interval:  interval,
		onFrame:   onFrame,
	}
}

// Start begins posting frames. Calling Start on a running link is a no-op.
func (d *DisplayLink) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != nil {
		return
	}
	start := time.Now()
	d.handle = d.thread.PostRepeating(func() {
		d.frame(start)
	}, d.interval)
}

// Stop stops posting frames. A frame already running completes.
func (d *DisplayLink) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		return
	}
	d.handle.Stop()
	d.handle = nil
}

// Running reports whether the link is started.
func (d *DisplayLink) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil
}

// Interval returns the frame interval.
func (d *DisplayLink) Interval() time.Duration {
	return d.interval
}

func (d *DisplayLink) frame(start time.Time) {
	d.scheduler.TriggerUI()
	if d.onFrame != nil {
		d.onFrame(float64(time.Since(start)) / float64(time.Millisecond))
	}
}
