package workletrunner

import (
	"github.com/Swind/go-worklet-runner/core"
	"github.com/Swind/go-worklet-runner/worklet"
)

// Re-export commonly used types so most callers only import this package.

// Job is the unit of work scheduled on a thread.
type Job = core.Job

// Logger is the structured logging interface used throughout.
type Logger = core.Logger

// Metrics receives job and worklet counters.
type Metrics = core.Metrics

// RuntimeManager owns a single JavaScript runtime.
type RuntimeManager = worklet.RuntimeManager

// ErrorWrapper is a captured worklet error.
type ErrorWrapper = worklet.ErrorWrapper

// Reporter surfaces worklet errors.
type Reporter = worklet.Reporter

// ReporterFunc adapts a function to Reporter.
type ReporterFunc = worklet.ReporterFunc

// F creates a log field.
var F = core.F

// Runtime kinds
const (
	RuntimeUI = worklet.RuntimeUI
	RuntimeJS = worklet.RuntimeJS
)
