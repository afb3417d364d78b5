package worklet

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/Swind/go-worklet-runner/core"
)

// ModuleName is the name scripts pass to require to load the native module.
const ModuleName = "worklet"

const incompatibleRunOnJS = "Incompatible object passed to runOnJS. It is only allowed to call functions defined on the JS runtime this way"

// loadModule populates require("worklet"). Exports differ by runtime kind.
func (m *RuntimeManager) loadModule(rt *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("runtime", m.kind.String())
	_ = exports.Set("makeShared", m.jsMakeShared)
	_ = exports.Set("getShared", m.jsGetShared)
	_ = exports.Set("setShared", m.jsSetShared)

	switch m.kind {
	case RuntimeUI:
		_ = exports.Set("runOnJS", m.jsRunOnJS)
		_ = exports.Set("requestAnimationFrame", m.jsRequestAnimationFrame)
	case RuntimeJS:
		_ = exports.Set("runOnUI", m.jsRunOnUI)
		_ = exports.Set("makeRemote", m.jsMakeRemote)
		_ = exports.Set("registerEventHandler", m.jsRegisterEventHandler)
		_ = exports.Set("unregisterEventHandler", m.jsUnregisterEventHandler)
	}
}

// runOnJS(name, ...args)
func (m *RuntimeManager) jsRunOnJS(call goja.FunctionCall) goja.Value {
	target := call.Argument(0)
	if _, isFn := goja.AssertFunction(target); isFn {
		panic(m.rt.NewTypeError(incompatibleRunOnJS))
	}
	if goja.IsUndefined(target) || goja.IsNull(target) {
		panic(m.rt.NewTypeError("runOnJS: remote function name is required"))
	}

	args, err := exportArgs(restArgs(call, 1))
	if err != nil {
		panic(m.rt.NewTypeError(fmt.Sprintf("%s: %v", incompatibleRunOnJS, err)))
	}
	if m.peer == nil {
		panic(m.rt.NewTypeError("runOnJS: no JS runtime is linked"))
	}
	if err := m.peer.post(m.peer.remoteJob(target.String(), args)); err != nil {
		panic(m.rt.NewGoError(err))
	}
	return goja.Undefined()
}

// runOnUI(name, ...args)
func (m *RuntimeManager) jsRunOnUI(call goja.FunctionCall) goja.Value {
	target := call.Argument(0)
	if goja.IsUndefined(target) || goja.IsNull(target) {
		panic(m.rt.NewTypeError("runOnUI: worklet name is required"))
	}
	if _, isFn := goja.AssertFunction(target); isFn {
		panic(m.rt.NewTypeError("runOnUI: pass the worklet name, functions cannot cross runtimes"))
	}

	args, err := exportArgs(restArgs(call, 1))
	if err != nil {
		panic(m.rt.NewTypeError(fmt.Sprintf("runOnUI: %v", err)))
	}
	if m.peer == nil {
		panic(m.rt.NewTypeError("runOnUI: no UI runtime is linked"))
	}
	if err := m.peer.post(m.peer.workletJob(target.String(), args)); err != nil {
		panic(m.rt.NewGoError(err))
	}
	return goja.Undefined()
}

// registerEventHandler(eventName, workletName, emitter?) returns the handler id.
func (m *RuntimeManager) jsRegisterEventHandler(call goja.FunctionCall) goja.Value {
	eventName, ok := call.Argument(0).Export().(string)
	if !ok || eventName == "" {
		panic(m.rt.NewTypeError("registerEventHandler: event name is required"))
	}
	target := call.Argument(1)
	if _, isFn := goja.AssertFunction(target); isFn {
		panic(m.rt.NewTypeError("registerEventHandler: pass the worklet name, functions cannot cross runtimes"))
	}
	worklet, ok := target.Export().(string)
	if !ok || worklet == "" {
		panic(m.rt.NewTypeError("registerEventHandler: worklet name is required"))
	}
	emitter := AnyEmitter
	if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		emitter = int(arg.ToInteger())
	}
	if m.peer == nil {
		panic(m.rt.NewTypeError("registerEventHandler: no UI runtime is linked"))
	}

	id, err := m.peer.registerEventHandler(m.peer.post, eventName, worklet, emitter)
	if err != nil {
		panic(m.rt.NewGoError(err))
	}
	return m.rt.ToValue(id)
}

// unregisterEventHandler(id)
func (m *RuntimeManager) jsUnregisterEventHandler(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if id <= 0 {
		panic(m.rt.NewTypeError("unregisterEventHandler: invalid handler id"))
	}
	if m.peer == nil {
		panic(m.rt.NewTypeError("unregisterEventHandler: no UI runtime is linked"))
	}
	if err := m.peer.post(m.peer.unregisterJob(uint64(id))); err != nil {
		panic(m.rt.NewGoError(err))
	}
	return goja.Undefined()
}

// makeRemote(fn) registers fn for runOnJS and returns its name.
func (m *RuntimeManager) jsMakeRemote(call goja.FunctionCall) goja.Value {
	h, err := NewHostFunctionHandler(m, m.rt, call.Argument(0))
	if err != nil {
		panic(m.rt.NewTypeError(fmt.Sprintf("makeRemote: %v", err)))
	}
	if m.remotes.Register(h) {
		m.logger.Warn("remote function replaced",
			core.F("runtime", m.name),
			core.F("name", h.Name()),
		)
	}
	return m.rt.ToValue(h.Name())
}

// requestAnimationFrame(fn)
func (m *RuntimeManager) jsRequestAnimationFrame(call goja.FunctionCall) goja.Value {
	if err := m.RequestAnimationFrame(call.Argument(0)); err != nil {
		panic(m.rt.NewTypeError(err.Error()))
	}
	return goja.Undefined()
}

// makeShared(key, initial) returns the value held under key.
func (m *RuntimeManager) jsMakeShared(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	v, _, err := m.shared.Make(key, call.Argument(1).Export())
	if err != nil {
		panic(m.rt.NewTypeError(fmt.Sprintf("makeShared %q: %v", key, err)))
	}
	return m.rt.ToValue(v)
}

// getShared(key) returns the value under key or undefined.
func (m *RuntimeManager) jsGetShared(call goja.FunctionCall) goja.Value {
	v, ok := m.shared.Get(call.Argument(0).String())
	if !ok {
		return goja.Undefined()
	}
	return m.rt.ToValue(v)
}

// setShared(key, value)
func (m *RuntimeManager) jsSetShared(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	if err := m.shared.Set(key, call.Argument(1).Export()); err != nil {
		panic(m.rt.NewTypeError(fmt.Sprintf("setShared %q: %v", key, err)))
	}
	return goja.Undefined()
}

func restArgs(call goja.FunctionCall, from int) []goja.Value {
	if len(call.Arguments) <= from {
		return nil
	}
	return call.Arguments[from:]
}

// exportArgs converts call arguments to Go values that can be handed to the
// other runtime.
func exportArgs(args []goja.Value) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		if _, isFn := goja.AssertFunction(a); isFn {
			return nil, fmt.Errorf("%w: argument %d is a function", ErrIncompatibleValue, i)
		}
		v := a.Export()
		if err := checkShareable(v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = cloneShareable(v)
	}
	return out, nil
}
