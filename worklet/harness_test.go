package worklet

import (
	"sync"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-worklet-runner/core"
)

// harness wires a UI and a JS runtime on one scheduler. The JS invoker runs
// jobs inline and there is no UI invoker, so tests drive the UI queue by hand
// and everything stays on the test goroutine.
type harness struct {
	sched *core.Scheduler
	eh    *UIErrorHandler
	ui    *RuntimeManager
	js    *RuntimeManager

	mu      sync.Mutex
	reports []ErrorWrapper
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{}
	h.sched = core.NewScheduler(&core.Config{Logger: core.NewNoOpLogger()})
	h.sched.SetJSCallInvoker(core.CallInvokerFunc(func(job core.Job) { job() }))
	h.eh = NewUIErrorHandler(h.sched, ReporterFunc(func(e ErrorWrapper) {
		h.mu.Lock()
		h.reports = append(h.reports, e)
		h.mu.Unlock()
	}))

	var err error
	h.ui, err = NewRuntimeManager(RuntimeUI, h.sched, h.eh)
	require.NoError(t, err)
	h.js, err = NewRuntimeManager(RuntimeJS, h.sched, h.eh)
	require.NoError(t, err)
	require.NoError(t, Link(h.ui, h.js))
	return h
}

// drain runs UI jobs until the queue is empty.
func (h *harness) drain() {
	for h.sched.TriggerUI() {
	}
}

func (h *harness) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.reports))
	for i, r := range h.reports {
		out[i] = r.Message
	}
	return out
}

// evalUI evaluates src on the UI runtime and drains the queue.
func (h *harness) evalUI(t *testing.T, src string) {
	t.Helper()
	require.NoError(t, h.ui.Evaluate("test.js", src))
	h.drain()
}

// global reads a global from m's runtime on its own thread.
func (h *harness) global(t *testing.T, m *RuntimeManager, name string) any {
	t.Helper()
	var out any
	require.NoError(t, m.Run(func(rt *goja.Runtime) {
		if v := rt.Get(name); v != nil {
			out = v.Export()
		}
	}))
	h.drain()
	return out
}
