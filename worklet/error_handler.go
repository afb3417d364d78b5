package worklet

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-worklet-runner/core"
)

// ErrorHandler receives failures raised while running worklets and reports
// them on the UI thread. SetError may be called from any goroutine.
type ErrorHandler interface {
	SetError(message string)
	Error() *ErrorWrapper
	Scheduler() *core.Scheduler
}

// ErrorWrapper is one captured worklet failure.
type ErrorWrapper struct {
	ID      uuid.UUID
	Message string
	// Thread is the queue on which the failure is surfaced.
	Thread string
	// Runtime names the runtime that raised the failure; empty when unknown.
	Runtime string
	At      time.Time
}

// Reporter surfaces an error to the user. Report runs on the UI thread.
type Reporter interface {
	Report(err ErrorWrapper)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err ErrorWrapper)

// Report calls f(err).
func (f ReporterFunc) Report(err ErrorWrapper) {
	f(err)
}

// LogReporter reports errors through a Logger at Error level.
type LogReporter struct {
	Logger core.Logger
}

// Report implements Reporter.
func (r *LogReporter) Report(err ErrorWrapper) {
	r.Logger.Error("worklet error",
		core.F("id", err.ID.String()),
		core.F("message", err.Message),
		core.F("runtime", err.Runtime),
		core.F("thread", err.Thread),
	)
}

// ChannelReporter delivers errors to a channel. A full channel drops the report.
type ChannelReporter chan ErrorWrapper

// Report implements Reporter.
func (c ChannelReporter) Report(err ErrorWrapper) {
	select {
	case c <- err:
	default:
	}
}

// ErrorState is the lifecycle state of a UIErrorHandler.
type ErrorState int

const (
	ErrorIdle ErrorState = iota
	ErrorPending
	ErrorReported
)

func (s ErrorState) String() string {
	switch s {
	case ErrorIdle:
		return "idle"
	case ErrorPending:
		return "pending"
	case ErrorReported:
		return "reported"
	default:
		return "unknown"
	}
}

// UIErrorHandler is the ErrorHandler that reports on the UI thread.
//
// SetError stores the error and schedules a report job with ScheduleOnUI. The
// report job takes whatever error is pending when it runs, so a burst of errors
// before the job runs collapses to the last one (the others are counted as
// overwritten). Jobs that find nothing pending do nothing.
type UIErrorHandler struct {
	scheduler *core.Scheduler
	reporter  Reporter
	logger    core.Logger
	metrics   core.Metrics

	mu          sync.Mutex
	state       ErrorState
	pending     *ErrorWrapper
	last        *ErrorWrapper
	reported    int64
	overwritten int64
}

// NewUIErrorHandler creates a handler reporting through reporter. A nil
// reporter logs through the scheduler's logger.
func NewUIErrorHandler(scheduler *core.Scheduler, reporter Reporter) *UIErrorHandler {
	logger := scheduler.Logger()
	if reporter == nil {
		reporter = &LogReporter{Logger: logger}
	}
	return &UIErrorHandler{
		scheduler: scheduler,
		reporter:  reporter,
		logger:    logger,
		metrics:   scheduler.Metrics(),
	}
}

// SetError records an error with no runtime attribution.
func (h *UIErrorHandler) SetError(message string) {
	h.SetErrorFrom("", message)
}

// SetErrorFrom records an error raised by the named runtime and schedules its report.
func (h *UIErrorHandler) SetErrorFrom(runtime, message string) {
	w := &ErrorWrapper{
		ID:      uuid.New(),
		Message: message,
		Thread:  core.QueueUI,
		Runtime: runtime,
		At:      time.Now(),
	}

	h.mu.Lock()
	var dropped *ErrorWrapper
	if h.state == ErrorPending {
		dropped = h.pending
		h.overwritten++
	}
	h.state = ErrorPending
	h.pending = w
	h.last = w
	h.mu.Unlock()

	h.metrics.RecordWorkletError(runtime)
	if dropped != nil {
		h.logger.Warn("unreported worklet error overwritten",
			core.F("dropped", dropped.Message),
			core.F("message", message),
		)
	}

	h.raise()
}

func (h *UIErrorHandler) raise() {
	h.scheduler.ScheduleOnUI(h.report)
}

// report runs on the UI thread.
func (h *UIErrorHandler) report() {
	h.mu.Lock()
	if h.state != ErrorPending || h.pending == nil {
		h.mu.Unlock()
		return
	}
	w := *h.pending
	h.pending = nil
	h.state = ErrorReported
	h.reported++
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.state == ErrorReported {
			h.state = ErrorIdle
		}
		h.mu.Unlock()
	}()

	h.reporter.Report(w)
}

// Error returns a copy of the most recently set error, or nil if none was set.
func (h *UIErrorHandler) Error() *ErrorWrapper {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	w := *h.last
	return &w
}

// State returns the current lifecycle state.
func (h *UIErrorHandler) State() ErrorState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Reported returns how many errors reached the Reporter.
func (h *UIErrorHandler) Reported() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reported
}

// Overwritten returns how many pending errors were replaced before being reported.
func (h *UIErrorHandler) Overwritten() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overwritten
}

// Scheduler returns the scheduler used to reach the UI thread.
func (h *UIErrorHandler) Scheduler() *core.Scheduler {
	return h.scheduler
}
