package core

import (
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling job panics
// =============================================================================

// PanicHandler is called when a job panics during execution.
//
// Implementations should be thread-safe as they may be called concurrently
// from the UI and JS threads.
type PanicHandler interface {
	// HandlePanic is called when a job panics.
	//
	// Parameters:
	// - queue: The queue or thread the job was executing on ("ui", "js", thread name)
	// - panicInfo: The panic value recovered from the job
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(queue string, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler reports panics through a Logger.
type LoggingPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *LoggingPanicHandler) HandlePanic(queue string, panicInfo any, stackTrace []byte) {
	h.Logger.Error("job panicked",
		F("queue", queue),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting job execution metrics.
// Methods should be non-blocking and fast to avoid impacting frame timing.
type Metrics interface {
	// RecordJobDuration records how long a job took to execute.
	RecordJobDuration(queue string, duration time.Duration)

	// RecordJobPanic records that a job panicked during execution.
	RecordJobPanic(queue string, panicInfo any)

	// RecordQueueDepth records the current number of jobs waiting in a queue.
	RecordQueueDepth(queue string, depth int)

	// RecordJobRejected records that a job was rejected (e.g., after shutdown).
	RecordJobRejected(queue string, reason string)

	// RecordWorkletError records an error captured from a worklet runtime.
	RecordWorkletError(runtime string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordJobDuration(queue string, duration time.Duration) {}
func (m *NilMetrics) RecordJobPanic(queue string, panicInfo any)              {}
func (m *NilMetrics) RecordQueueDepth(queue string, depth int)                {}
func (m *NilMetrics) RecordJobRejected(queue string, reason string)           {}
func (m *NilMetrics) RecordWorkletError(runtime string)                       {}

// =============================================================================
// RejectedJobHandler: Interface for handling rejected jobs
// =============================================================================

// RejectedJobHandler is called when a job cannot be accepted, which happens
// when the destination thread has already been stopped.
type RejectedJobHandler interface {
	HandleRejectedJob(queue string, reason string)
}

// LoggingRejectedJobHandler reports rejected jobs through a Logger.
type LoggingRejectedJobHandler struct {
	Logger Logger
}

// HandleRejectedJob logs the rejected job at warn level.
func (h *LoggingRejectedJobHandler) HandleRejectedJob(queue string, reason string) {
	h.Logger.Warn("job rejected", F("queue", queue), F("reason", reason))
}

// =============================================================================
// Config: shared configuration for Thread and Scheduler
// =============================================================================

// Config holds the collaborators shared by threads and the scheduler.
// All fields are optional; nil fields are replaced by defaults.
type Config struct {
	// Logger defaults to DefaultLogger.
	Logger Logger

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler defaults to a LoggingPanicHandler using Logger.
	PanicHandler PanicHandler

	// RejectedJobHandler defaults to a LoggingRejectedJobHandler using Logger.
	RejectedJobHandler RejectedJobHandler
}

// DefaultConfig returns a config with default handlers.
func DefaultConfig() *Config {
	return (&Config{}).withDefaults()
}

// withDefaults returns a copy of c with every nil collaborator filled in.
func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &LoggingPanicHandler{Logger: out.Logger}
	}
	if out.RejectedJobHandler == nil {
		out.RejectedJobHandler = &LoggingRejectedJobHandler{Logger: out.Logger}
	}
	return &out
}
