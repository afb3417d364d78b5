package worklet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-worklet-runner/core"
)

func TestNewRuntimeManager_Validates(t *testing.T) {
	sched := core.NewScheduler(&core.Config{Logger: core.NewNoOpLogger()})

	_, err := NewRuntimeManager(RuntimeUI, nil, NewUIErrorHandler(sched, nil))
	assert.Error(t, err)

	_, err = NewRuntimeManager(RuntimeUI, sched, nil)
	assert.Error(t, err)
}

func TestNewRuntimeManager_RegistersUIOwner(t *testing.T) {
	h := newHarness(t)
	assert.Same(t, h.ui, h.sched.RuntimeManager())
	assert.Equal(t, "ui", h.ui.Name())
	assert.Equal(t, "js", h.js.Name())
	assert.Equal(t, RuntimeJS, h.js.Kind())
	assert.Same(t, h.js, h.ui.Peer())
	assert.Same(t, h.ui.SharedValues(), h.js.SharedValues())

	assert.ErrorIs(t, Link(h.ui, h.js), ErrAlreadyLinked)
	assert.Error(t, Link(h.js, h.ui))
}

// TestRuntimeManager_RunStaysOnUIQueue verifies UI runtime work only happens when the UI queue is triggered
func TestRuntimeManager_RunStaysOnUIQueue(t *testing.T) {
	h := newHarness(t)

	ran := false
	require.NoError(t, h.ui.Run(func(*goja.Runtime) { ran = true }))
	assert.False(t, ran)
	assert.Equal(t, 1, h.sched.PendingUI())

	h.drain()
	assert.True(t, ran)
}

// TestRuntimeManager_ErrorRoundTrip tests a thrown worklet error reaching the reporter
// Main test items:
// 1. Error objects report their message property verbatim
// 2. Non-Error throws report their string form
// 3. The report names the runtime that raised it
func TestRuntimeManager_ErrorRoundTrip(t *testing.T) {
	h := newHarness(t)

	h.evalUI(t, `throw new Error("Something went wrong")`)
	h.evalUI(t, `throw "plain string"`)

	assert.Equal(t, []string{"Something went wrong", "plain string"}, h.messages())
	assert.Equal(t, "ui", h.eh.Error().Runtime)
}

func TestRuntimeManager_RunGuarded(t *testing.T) {
	h := newHarness(t)
	h.evalUI(t, `
		function double(n) { return n * 2 }
		function fail(msg) { throw new TypeError(msg) }
	`)

	var res goja.Value
	var ok, failed bool
	require.NoError(t, h.ui.Run(func(rt *goja.Runtime) {
		res, ok = h.ui.RunGuarded(rt.Get("double"), 21)
		_, failed = h.ui.RunGuarded(rt.Get("fail"), "bad input")
		_, notFn := h.ui.RunGuarded(rt.ToValue(1))
		assert.False(t, notFn)
	}))
	h.drain()

	assert.True(t, ok)
	assert.Equal(t, int64(42), res.ToInteger())
	assert.False(t, failed)
	msgs := h.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "bad input", msgs[0])
}

func TestRuntimeManager_PanicInJobIsReported(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ui.Run(func(*goja.Runtime) { panic(errors.New("native failure")) }))
	h.drain()

	assert.Equal(t, []string{"native failure"}, h.messages())
}

func TestRuntimeManager_RunWorklet(t *testing.T) {
	h := newHarness(t)
	h.evalUI(t, `var total = 0; function add(n) { total += n }`)

	require.NoError(t, h.ui.RunWorklet("add", 5))
	require.NoError(t, h.ui.RunWorklet("add", 7))
	require.NoError(t, h.ui.RunWorklet("missing"))
	h.drain()

	assert.Equal(t, int64(12), h.global(t, h.ui, "total"))
	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "missing")
}

func TestRuntimeManager_EvaluateSyncOnJS(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.js.EvaluateSync(ctx, "ok.js", `var x = 1`))

	err := h.js.EvaluateSync(ctx, "bad.js", `throw new Error("nope")`)
	var ex *goja.Exception
	require.ErrorAs(t, err, &ex)
	assert.Contains(t, err.Error(), "bad.js")
	assert.Empty(t, h.messages(), "sync evaluation returns errors instead of reporting them")
}

// TestRuntimeManager_FrameCallbacks tests requestAnimationFrame and OnRender
// Main test items:
// 1. Callbacks receive the frame timestamp
// 2. Callbacks requested during a frame run on the next frame, not the current one
// 3. A throwing callback does not stop the others
func TestRuntimeManager_FrameCallbacks(t *testing.T) {
	h := newHarness(t)
	h.evalUI(t, `
		var w = require("worklet");
		var stamps = [];
		w.requestAnimationFrame(function first(ts) {
			stamps.push(ts);
			w.requestAnimationFrame(function later(ts2) { stamps.push(ts2) });
		});
		w.requestAnimationFrame(function broken() { throw new Error("frame failed") });
		w.requestAnimationFrame(function third(ts) { stamps.push(ts + 1) });
	`)
	assert.Equal(t, 3, h.ui.PendingFrameCallbacks())

	var n int
	require.NoError(t, h.ui.Run(func(*goja.Runtime) { n = h.ui.OnRender(16.5) }))
	h.drain()
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, h.ui.PendingFrameCallbacks())
	assert.Equal(t, []any{16.5, 17.5}, h.global(t, h.ui, "stamps"))
	assert.Equal(t, []string{"frame failed"}, h.messages())

	require.NoError(t, h.ui.Run(func(*goja.Runtime) { n = h.ui.OnRender(33.5) }))
	h.drain()
	assert.Equal(t, 1, n)
	assert.Equal(t, []any{16.5, 17.5, 33.5}, h.global(t, h.ui, "stamps"))
}

func TestRuntimeManager_RequestAnimationFrameRejectsNonFunction(t *testing.T) {
	h := newHarness(t)
	h.evalUI(t, `require("worklet").requestAnimationFrame(42)`)

	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "requestAnimationFrame")
	assert.Equal(t, 0, h.ui.PendingFrameCallbacks())
}

// TestRuntimeManager_Close tests teardown
// Main test items:
// 1. Work queued before Close runs to completion
// 2. Run after Close is refused
// 3. Close is idempotent and the scheduler sees the runtime as destroyed
func TestRuntimeManager_Close(t *testing.T) {
	h := newHarness(t)
	h.evalUI(t, `var done = false; require("worklet").requestAnimationFrame(function f() {})`)
	require.Equal(t, 1, h.ui.PendingFrameCallbacks())

	// queued, not drained: Close has to run these
	require.NoError(t, h.ui.Evaluate("queued.js", `done = true`))
	var done any
	require.NoError(t, h.ui.Run(func(rt *goja.Runtime) { done = rt.Get("done").Export() }))

	require.NoError(t, h.ui.Close(context.Background()))
	assert.Equal(t, true, done)
	assert.True(t, h.ui.Destroyed())
	assert.Equal(t, 0, h.ui.PendingFrameCallbacks())
	assert.True(t, h.sched.Stats().RuntimeDestroyed)

	assert.ErrorIs(t, h.ui.Run(func(*goja.Runtime) {}), ErrRuntimeDestroyed)
	assert.ErrorIs(t, h.ui.Evaluate("late.js", `1`), ErrRuntimeDestroyed)
	assert.NoError(t, h.ui.Close(context.Background()))
}

// TestRuntimeManager_CloseTimeout verifies a stuck UI thread does not block teardown forever
func TestRuntimeManager_CloseTimeout(t *testing.T) {
	sched := core.NewScheduler(&core.Config{Logger: core.NewNoOpLogger()})
	// a UI invoker that never runs anything
	sched.SetUICallInvoker(core.CallInvokerFunc(func(core.Job) {}))
	ui, err := NewRuntimeManager(RuntimeUI, sched, NewUIErrorHandler(sched, nil))
	require.NoError(t, err)

	ran := false
	require.NoError(t, ui.Run(func(*goja.Runtime) { ran = true }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ui.Close(ctx), context.DeadlineExceeded)
	assert.True(t, ui.Destroyed())

	// a late trigger finds the runtime gone and skips the job
	for sched.TriggerUI() {
	}
	assert.False(t, ran)
}

// TestRuntimeManager_EvaluateSyncDroppedByTeardown verifies a waiting EvaluateSync
// returns when its job is skipped because the runtime was destroyed
func TestRuntimeManager_EvaluateSyncDroppedByTeardown(t *testing.T) {
	sched := core.NewScheduler(&core.Config{Logger: core.NewNoOpLogger()})
	// a UI invoker that never runs anything
	sched.SetUICallInvoker(core.CallInvokerFunc(func(core.Job) {}))
	ui, err := NewRuntimeManager(RuntimeUI, sched, NewUIErrorHandler(sched, nil))
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		result <- ui.EvaluateSync(context.Background(), "late.js", `1 + 1`)
	}()
	require.Eventually(t, func() bool { return sched.PendingUI() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, ui.Close(ctx), context.DeadlineExceeded)

	for sched.TriggerUI() {
	}
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrRuntimeDestroyed)
	case <-time.After(time.Second):
		t.Fatal("EvaluateSync still waiting after its job was dropped")
	}

	assert.ErrorIs(t, ui.EvaluateSync(context.Background(), "after.js", `1`), ErrRuntimeDestroyed)
}

// TestCloseAll_PeersStayReachableDuringFlush tests closing both runtimes together
// Main test items:
// 1. A UI job run by the flush calls runOnJS, which calls runOnUI back
// 2. Both hops run instead of failing with ErrRuntimeDestroyed
// 3. Both managers end destroyed and a second CloseAll is a no-op
func TestCloseAll_PeersStayReachableDuringFlush(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.js.EvaluateSync(ctx, "host.js", `
		var w = require("worklet");
		w.makeRemote(function relay() { w.runOnUI("finish") });
	`))
	h.evalUI(t, `
		var w = require("worklet");
		function start() { w.runOnJS("relay") }
		function finish() { w.setShared("finished", true) }
	`)
	require.NoError(t, h.ui.RunWorklet("start"))

	require.NoError(t, CloseAll(ctx, h.ui, h.js))

	assert.Empty(t, h.messages())
	finished, ok := h.ui.SharedValues().Get("finished")
	assert.True(t, ok)
	assert.Equal(t, true, finished)
	assert.True(t, h.ui.Destroyed())
	assert.True(t, h.js.Destroyed())

	assert.NoError(t, CloseAll(ctx, h.ui, h.js))
	assert.NoError(t, h.js.Close(ctx))
}

func TestRuntimeManager_CallRemote(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.js.EvaluateSync(context.Background(), "host.js", `
		var got = 0;
		require("worklet").makeRemote(function add(n) { got += n });
	`))

	require.NoError(t, h.js.CallRemote("add", int64(4)))
	require.NoError(t, h.js.CallRemote("nobody"))
	h.drain()

	assert.Equal(t, int64(4), h.global(t, h.js, "got"))
	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `"nobody"`)
}
