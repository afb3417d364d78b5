package worklet

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/Swind/go-worklet-runner/core"
)

// RuntimeKind identifies which thread a runtime lives on.
type RuntimeKind int

const (
	// RuntimeUI is the worklet runtime. Its jobs run on the UI queue.
	RuntimeUI RuntimeKind = iota
	// RuntimeJS is the host JS runtime. Its jobs run on the JS call invoker.
	RuntimeJS
)

func (k RuntimeKind) String() string {
	switch k {
	case RuntimeUI:
		return "ui"
	case RuntimeJS:
		return "js"
	default:
		return fmt.Sprintf("RuntimeKind(%d)", int(k))
	}
}

// Option configures a RuntimeManager.
type Option func(*RuntimeManager)

// WithName overrides the runtime name used in logs and error reports.
func WithName(name string) Option {
	return func(m *RuntimeManager) {
		m.name = name
	}
}

// WithSharedValues makes the manager use sv for makeShared/getShared/setShared.
func WithSharedValues(sv *SharedValues) Option {
	return func(m *RuntimeManager) {
		m.shared = sv
	}
}

// WithLogger overrides the scheduler's logger.
func WithLogger(logger core.Logger) Option {
	return func(m *RuntimeManager) {
		m.logger = logger
	}
}

// RuntimeManager owns one goja runtime and runs everything that touches it on
// that runtime's thread.
//
// The goja runtime is not safe for concurrent use. Every access goes through
// Run, which schedules the work on the UI queue or the JS invoker depending on
// the kind. Methods documented as "runtime thread only" must be called from
// such a job.
type RuntimeManager struct {
	kind      RuntimeKind
	name      string
	rt        *goja.Runtime
	scheduler *core.Scheduler
	errors    ErrorHandler
	logger    core.Logger

	peer    *RuntimeManager
	shared  *SharedValues
	remotes *RemoteRegistry
	events  *EventHandlerRegistry

	frameMu        sync.Mutex
	frameCallbacks []goja.Value

	closing   atomic.Bool
	destroyed atomic.Bool
	closed    chan struct{}
	closeErr  error
}

// NewRuntimeManager creates a runtime of the given kind with the native
// worklet module registered. A RuntimeUI manager registers itself as the
// scheduler's runtime manager, so a scheduler carries at most one.
func NewRuntimeManager(kind RuntimeKind, sched *core.Scheduler, eh ErrorHandler, opts ...Option) (*RuntimeManager, error) {
	if sched == nil {
		return nil, fmt.Errorf("new %s runtime: scheduler is nil", kind)
	}
	if eh == nil {
		return nil, fmt.Errorf("new %s runtime: error handler is nil", kind)
	}

	m := &RuntimeManager{
		kind:      kind,
		name:      kind.String(),
		scheduler: sched,
		errors:    eh,
		logger:    sched.Logger(),
		remotes:   NewRemoteRegistry(),
		events:    NewEventHandlerRegistry(),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.shared == nil {
		m.shared = NewSharedValues()
	}

	m.rt = goja.New()
	registry := require.NewRegistry()
	registry.RegisterNativeModule(ModuleName, m.loadModule)
	registry.Enable(m.rt)

	if kind == RuntimeUI {
		sched.SetRuntimeManager(m)
	}
	return m, nil
}

// Link connects a UI runtime with a JS runtime so runOnJS and runOnUI can
// reach each other. Both managers share the UI manager's SharedValues.
// Call it before any script runs.
func Link(ui, js *RuntimeManager) error {
	if ui.kind != RuntimeUI || js.kind != RuntimeJS {
		return fmt.Errorf("link: want ui and js runtimes, got %s and %s", ui.kind, js.kind)
	}
	if ui.peer != nil || js.peer != nil {
		return ErrAlreadyLinked
	}
	ui.peer = js
	js.peer = ui
	js.shared = ui.shared
	return nil
}

// Kind returns the runtime kind.
func (m *RuntimeManager) Kind() RuntimeKind {
	return m.kind
}

// Name returns the runtime name.
func (m *RuntimeManager) Name() string {
	return m.name
}

// Destroyed reports whether teardown has completed.
func (m *RuntimeManager) Destroyed() bool {
	return m.destroyed.Load()
}

// Peer returns the linked runtime, or nil.
func (m *RuntimeManager) Peer() *RuntimeManager {
	return m.peer
}

// SharedValues returns the shared value registry.
func (m *RuntimeManager) SharedValues() *SharedValues {
	return m.shared
}

// Remotes returns the functions registered with makeRemote on this runtime.
func (m *RuntimeManager) Remotes() *RemoteRegistry {
	return m.remotes
}

// Events returns the worklet event handlers registered on this runtime.
func (m *RuntimeManager) Events() *EventHandlerRegistry {
	return m.events
}

// ErrorHandler returns the handler failures are reported to.
func (m *RuntimeManager) ErrorHandler() ErrorHandler {
	return m.errors
}

// Run schedules fn on the runtime's thread. Once teardown has begun it returns
// ErrRuntimeDestroyed and fn never runs. A panic in fn is reported to the
// ErrorHandler.
func (m *RuntimeManager) Run(fn func(rt *goja.Runtime)) error {
	if m.closing.Load() {
		m.logger.Debug("job dropped, runtime is shutting down", core.F("runtime", m.name))
		return ErrRuntimeDestroyed
	}
	m.schedule(fn, nil)
	return nil
}

// post schedules work handed over by the peer runtime. It is still accepted
// while a teardown flush is in progress, so jobs the flush runs can reach
// this runtime until it is destroyed.
func (m *RuntimeManager) post(fn func(rt *goja.Runtime)) error {
	if m.destroyed.Load() {
		return ErrRuntimeDestroyed
	}
	m.schedule(fn, nil)
	return nil
}

// schedule queues fn on the runtime's thread. If the runtime is destroyed by
// the time the job runs, fn is skipped and onDrop, if any, is called instead.
func (m *RuntimeManager) schedule(fn func(rt *goja.Runtime), onDrop func()) {
	job := func() {
		if m.destroyed.Load() {
			if onDrop != nil {
				onDrop()
			}
			return
		}
		defer func() {
			if r := recover(); r != nil {
				m.report(panicMessage(r))
			}
		}()
		fn(m.rt)
	}

	switch m.kind {
	case RuntimeUI:
		m.scheduler.ScheduleOnUI(job)
	default:
		m.scheduler.ScheduleOnJS(job)
	}
}

// RunGuarded calls fn with args converted to runtime values. A thrown
// exception or panic is reported to the ErrorHandler instead of propagating;
// ok is false in that case.
// Runtime thread only.
func (m *RuntimeManager) RunGuarded(fn goja.Value, args ...any) (result goja.Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.report(panicMessage(r))
			result, ok = goja.Undefined(), false
		}
	}()

	call, isFn := goja.AssertFunction(fn)
	if !isFn {
		m.report(fmt.Sprintf("%s is not a function", fn))
		return goja.Undefined(), false
	}

	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = m.rt.ToValue(a)
	}

	res, err := call(goja.Undefined(), vals...)
	if err != nil {
		m.report(errorMessage(err))
		return goja.Undefined(), false
	}
	return res, true
}

// Evaluate schedules evaluation of a script. Failures go to the ErrorHandler.
func (m *RuntimeManager) Evaluate(name, source string) error {
	return m.Run(func(rt *goja.Runtime) {
		if _, err := rt.RunScript(name, source); err != nil {
			m.report(errorMessage(err))
		}
	})
}

// EvaluateSync evaluates a script and waits for the result. Script errors are
// returned to the caller rather than reported. If teardown destroys the
// runtime before the script runs, it returns ErrRuntimeDestroyed.
func (m *RuntimeManager) EvaluateSync(ctx context.Context, name, source string) error {
	if m.closing.Load() {
		return ErrRuntimeDestroyed
	}

	result := make(chan error, 1)
	m.schedule(func(rt *goja.Runtime) {
		_, err := rt.RunScript(name, source)
		result <- err
	}, func() {
		result <- ErrRuntimeDestroyed
	})

	select {
	case err := <-result:
		if errors.Is(err, ErrRuntimeDestroyed) {
			return err
		}
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", name, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Worklet captures the global function called name.
// Runtime thread only.
func (m *RuntimeManager) Worklet(name string) (*HostFunctionHandler, error) {
	v := m.rt.Get(name)
	if v == nil {
		return nil, fmt.Errorf("%w: %q on %s runtime", ErrWorkletNotFound, name, m.name)
	}
	return NewHostFunctionHandler(m, m.rt, v)
}

// RunWorklet schedules a call of the global function called name.
func (m *RuntimeManager) RunWorklet(name string, args ...any) error {
	return m.Run(m.workletJob(name, args))
}

func (m *RuntimeManager) workletJob(name string, args []any) func(*goja.Runtime) {
	return func(*goja.Runtime) {
		h, err := m.Worklet(name)
		if err != nil {
			m.report(err.Error())
			return
		}
		m.RunGuarded(h.PureFunction(), args...)
	}
}

// CallRemote schedules a call of a function registered with makeRemote.
func (m *RuntimeManager) CallRemote(name string, args ...any) error {
	return m.Run(m.remoteJob(name, args))
}

func (m *RuntimeManager) remoteJob(name string, args []any) func(*goja.Runtime) {
	return func(*goja.Runtime) {
		h, ok := m.remotes.Lookup(name)
		if !ok {
			m.report(fmt.Sprintf("%s: %q", ErrRemoteNotFound, name))
			return
		}
		m.RunGuarded(h.PureFunction(), args...)
	}
}

// RegisterEventHandler reserves an id and schedules registration of the global
// worklet called worklet as a handler of eventName. emitter limits the handler
// to one event source; AnyEmitter accepts all of them. A missing worklet is
// reported when the registration job runs.
func (m *RuntimeManager) RegisterEventHandler(eventName, worklet string, emitter int) (uint64, error) {
	return m.registerEventHandler(m.Run, eventName, worklet, emitter)
}

func (m *RuntimeManager) registerEventHandler(submit func(func(*goja.Runtime)) error, eventName, worklet string, emitter int) (uint64, error) {
	id := m.events.NextID()
	err := submit(func(*goja.Runtime) {
		h, err := m.Worklet(worklet)
		if err != nil {
			m.report(fmt.Sprintf("event handler for %q: %v", eventName, err))
			return
		}
		m.events.Register(id, eventName, emitter, h)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UnregisterEventHandler schedules removal of the handler registered under id.
func (m *RuntimeManager) UnregisterEventHandler(id uint64) error {
	return m.Run(m.unregisterJob(id))
}

func (m *RuntimeManager) unregisterJob(id uint64) func(*goja.Runtime) {
	return func(*goja.Runtime) {
		m.events.Unregister(id)
	}
}

// IsAnyHandlerWaitingForEvent reports whether an event called eventName from
// emitter would reach a registered handler.
func (m *RuntimeManager) IsAnyHandlerWaitingForEvent(eventName string, emitter int) bool {
	return m.events.IsAnyHandlerWaitingForEvent(eventName, emitter)
}

// DispatchEvent schedules OnEvent on the runtime's thread. payload must be
// shareable; it is copied before the call returns.
func (m *RuntimeManager) DispatchEvent(timestampMs float64, eventName string, emitter int, payload map[string]any) error {
	if err := checkShareable(payload); err != nil {
		return fmt.Errorf("dispatch %q: %w", eventName, err)
	}
	event, _ := cloneShareable(payload).(map[string]any)
	return m.Run(func(*goja.Runtime) {
		m.OnEvent(timestampMs, eventName, emitter, event)
	})
}

// OnEvent calls the handlers of eventName from emitter in registration order.
// Each receives the payload with an eventName field added, and the
// timestamp. A handler that throws is reported and the rest still run. It
// returns the number of handlers called.
// Runtime thread only.
func (m *RuntimeManager) OnEvent(timestampMs float64, eventName string, emitter int, payload map[string]any) int {
	if m.destroyed.Load() {
		return 0
	}
	handlers := m.events.Handlers(eventName, emitter)
	if len(handlers) == 0 {
		return 0
	}

	fields := make(map[string]any, len(payload)+1)
	maps.Copy(fields, payload)
	fields["eventName"] = eventName
	event := m.rt.ToValue(fields)

	for _, h := range handlers {
		m.RunGuarded(h.PureFunction(), event, timestampMs)
	}
	return len(handlers)
}

// RequestAnimationFrame queues fn to be called by the next OnRender.
func (m *RuntimeManager) RequestAnimationFrame(fn goja.Value) error {
	if _, ok := goja.AssertFunction(fn); !ok {
		return fmt.Errorf("%w: requestAnimationFrame needs a function", ErrInvalidFunctionValue)
	}
	m.frameMu.Lock()
	m.frameCallbacks = append(m.frameCallbacks, fn)
	m.frameMu.Unlock()
	return nil
}

// OnRender calls the queued frame callbacks with the frame timestamp.
// Callbacks requested during the frame wait for the next one.
// Runtime thread only.
func (m *RuntimeManager) OnRender(timestampMs float64) int {
	if m.destroyed.Load() {
		return 0
	}
	m.frameMu.Lock()
	callbacks := m.frameCallbacks
	m.frameCallbacks = nil
	m.frameMu.Unlock()

	for _, cb := range callbacks {
		m.RunGuarded(cb, timestampMs)
	}
	return len(callbacks)
}

// PendingFrameCallbacks returns the number of callbacks waiting for a frame.
func (m *RuntimeManager) PendingFrameCallbacks() int {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	return len(m.frameCallbacks)
}

// Close tears the runtime down. New work is refused, the scheduler is flushed
// so that jobs already queued finish, and references into the runtime are
// dropped. If ctx ends before the flush completes, running script is
// interrupted and the context error is returned. Close is idempotent.
func (m *RuntimeManager) Close(ctx context.Context) error {
	return CloseAll(ctx, m)
}

// CloseAll tears several runtimes down together. All of them stop accepting
// new work first, each distinct scheduler is flushed once, and only then is
// any of them destroyed, so a job running during the flush can still hand
// work to a peer in the set. Managers already closed are waited for and
// their earlier result is included.
func CloseAll(ctx context.Context, managers ...*RuntimeManager) error {
	var fresh []*RuntimeManager
	for _, m := range managers {
		if m.closing.CompareAndSwap(false, true) {
			fresh = append(fresh, m)
		}
	}

	var flushed []*core.Scheduler
	var flushErr error
	for _, m := range fresh {
		if slices.Contains(flushed, m.scheduler) {
			continue
		}
		flushed = append(flushed, m.scheduler)
		if err := m.scheduler.Flush(ctx); err != nil {
			flushErr = errors.Join(flushErr, err)
		}
	}
	for _, m := range fresh {
		m.destroy(flushErr)
	}

	var errs []error
	for _, m := range managers {
		<-m.closed
		if m.closeErr != nil && !slices.Contains(errs, m.closeErr) {
			errs = append(errs, m.closeErr)
		}
	}
	return errors.Join(errs...)
}

func (m *RuntimeManager) destroy(flushErr error) {
	if flushErr != nil {
		m.rt.Interrupt(ErrRuntimeDestroyed)
		m.logger.Warn("runtime teardown did not quiesce",
			core.F("runtime", m.name),
			core.F("error", flushErr),
		)
	}
	m.destroyed.Store(true)

	m.frameMu.Lock()
	m.frameCallbacks = nil
	m.frameMu.Unlock()
	m.remotes.Clear()
	m.events.Clear()

	m.closeErr = flushErr
	close(m.closed)
	m.logger.Debug("runtime destroyed", core.F("runtime", m.name))
}

func (m *RuntimeManager) report(message string) {
	if h, ok := m.errors.(interface{ SetErrorFrom(runtime, message string) }); ok {
		h.SetErrorFrom(m.name, message)
		return
	}
	m.errors.SetError(message)
}
