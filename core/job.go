package core

// Job is the unit of work (Closure) handed from one thread to another.
// A job is executed exactly once by the consuming thread and then discarded.
type Job func()

// Queue names used for logging and metrics labels.
const (
	QueueUI = "ui"
	QueueJS = "js"
)

// =============================================================================
// CallInvoker: platform capability for running a job on a specific thread
// =============================================================================

// CallInvoker asynchronously invokes jobs on the thread it represents.
// Jobs handed to the same invoker run in FIFO order.
type CallInvoker interface {
	InvokeAsync(job Job)
}

// CallInvokerFunc adapts an ordinary function to the CallInvoker interface.
type CallInvokerFunc func(job Job)

// InvokeAsync calls f(job).
func (f CallInvokerFunc) InvokeAsync(job Job) {
	f(job)
}

// RuntimeOwner is the non-owning view the Scheduler keeps of the runtime
// manager it was wired to.
type RuntimeOwner interface {
	Name() string
	Destroyed() bool
}
