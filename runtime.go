package workletrunner

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Swind/go-worklet-runner/core"
	"github.com/Swind/go-worklet-runner/worklet"
)

// Option customizes a Runtime.
type Option func(*options)

type options struct {
	logger      core.Logger
	metrics     core.Metrics
	reporter    worklet.Reporter
	displayLink bool
}

// WithLogger sets the logger. By default one is built from the config's log
// level and format, writing to stderr.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics core.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithReporter sets where worklet errors are reported. Defaults to the logger.
func WithReporter(reporter worklet.Reporter) Option {
	return func(o *options) {
		o.reporter = reporter
	}
}

// WithoutDisplayLink leaves frames to the caller: nothing triggers the UI
// queue except the UI thread's own wake-ups, and OnRender is never called.
func WithoutDisplayLink() Option {
	return func(o *options) {
		o.displayLink = false
	}
}

// Runtime wires the UI thread, the JS thread, the scheduler, both JS runtimes
// and the error handler together. It owns all of them; build a new Runtime to
// reload.
type Runtime struct {
	cfg    *Config
	logger core.Logger

	uiThread  *core.Thread
	jsThread  *core.Thread
	scheduler *core.Scheduler
	errors    *worklet.UIErrorHandler
	shared    *worklet.SharedValues
	ui        *worklet.RuntimeManager
	js        *worklet.RuntimeManager
	link      *core.DisplayLink

	closeOnce sync.Once
	closeErr  error
}

// NewRuntime builds a Runtime. A nil cfg means DefaultConfig.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{displayLink: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		logger, err := core.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}

	coreCfg := &core.Config{Logger: o.logger, Metrics: o.metrics}
	r := &Runtime{
		cfg:       cfg,
		logger:    o.logger,
		uiThread:  core.NewThread(core.QueueUI, coreCfg),
		jsThread:  core.NewThread(core.QueueJS, coreCfg),
		scheduler: core.NewScheduler(coreCfg),
		shared:    worklet.NewSharedValues(),
	}
	r.scheduler.SetJSCallInvoker(r.jsThread)
	r.scheduler.SetUICallInvoker(r.uiThread)
	r.errors = worklet.NewUIErrorHandler(r.scheduler, o.reporter)

	var err error
	r.ui, err = worklet.NewRuntimeManager(worklet.RuntimeUI, r.scheduler, r.errors, worklet.WithSharedValues(r.shared))
	if err == nil {
		r.js, err = worklet.NewRuntimeManager(worklet.RuntimeJS, r.scheduler, r.errors, worklet.WithSharedValues(r.shared))
	}
	if err == nil {
		err = worklet.Link(r.ui, r.js)
	}
	if err != nil {
		r.uiThread.Stop()
		r.jsThread.Stop()
		return nil, err
	}

	if o.displayLink {
		r.link = core.NewDisplayLink(r.uiThread, r.scheduler, cfg.FrameInterval, func(ts float64) {
			r.ui.OnRender(ts)
		})
	}

	r.logger.Info("runtime created",
		core.F("frame_interval", cfg.FrameInterval.String()),
		core.F("display_link", o.displayLink),
	)
	return r, nil
}

// Start starts the display link, if any.
func (r *Runtime) Start() {
	if r.link != nil {
		r.link.Start()
	}
}

// LoadScripts evaluates the configured worklet scripts on the UI runtime, then
// the JS scripts on the JS runtime. It stops at the first failure.
func (r *Runtime) LoadScripts(ctx context.Context) error {
	for _, path := range r.cfg.Scripts.Worklets {
		if err := evaluateFile(ctx, r.ui, path); err != nil {
			return err
		}
	}
	for _, path := range r.cfg.Scripts.JS {
		if err := evaluateFile(ctx, r.js, path); err != nil {
			return err
		}
	}
	return nil
}

func evaluateFile(ctx context.Context, m *worklet.RuntimeManager, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return m.EvaluateSync(ctx, path, string(src))
}

// Close stops the display link, tears down both runtimes together once their
// queued work has finished, then stops the threads. It returns the teardown errors,
// if any. Close is idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if r.link != nil {
			r.link.Stop()
		}
		r.closeErr = worklet.CloseAll(ctx, r.ui, r.js)
		r.uiThread.Stop()
		r.jsThread.Stop()
		r.logger.Info("runtime closed")
	})
	return r.closeErr
}

// Stats is a point-in-time view of the runtime.
type Stats struct {
	UIThread  core.ThreadStats
	JSThread  core.ThreadStats
	Scheduler core.SchedulerStats
}

// Stats returns a snapshot of thread and scheduler counters.
func (r *Runtime) Stats() Stats {
	return Stats{
		UIThread:  r.uiThread.Stats(),
		JSThread:  r.jsThread.Stats(),
		Scheduler: r.scheduler.Stats(),
	}
}

func (r *Runtime) Config() *Config                       { return r.cfg }
func (r *Runtime) Logger() core.Logger                   { return r.logger }
func (r *Runtime) Scheduler() *core.Scheduler            { return r.scheduler }
func (r *Runtime) UIThread() *core.Thread                { return r.uiThread }
func (r *Runtime) JSThread() *core.Thread                { return r.jsThread }
func (r *Runtime) UI() *worklet.RuntimeManager           { return r.ui }
func (r *Runtime) JS() *worklet.RuntimeManager           { return r.js }
func (r *Runtime) ErrorHandler() *worklet.UIErrorHandler { return r.errors }
func (r *Runtime) SharedValues() *worklet.SharedValues   { return r.shared }
func (r *Runtime) DisplayLink() *core.DisplayLink        { return r.link }
