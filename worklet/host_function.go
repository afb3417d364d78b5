package worklet

import (
	"fmt"

	"github.com/dop251/goja"
)

// HostFunctionHandler gives a function value captured from a runtime a stable
// native identity: its declared name and the runtime it belongs to.
//
// The handler is shared by plain pointer between native call sites and the
// registries that reference it; it holds the owning RuntimeManager by
// non-owning reference. The function itself may only be called on the owning
// runtime's thread.
type HostFunctionHandler struct {
	fn    goja.Value
	call  goja.Callable
	name  string
	rt    *goja.Runtime
	owner *RuntimeManager
}

// NewHostFunctionHandler captures value from rt. The name is read once, here.
// It fails with ErrInvalidFunctionValue when value is not callable or has no
// non-empty string name. owner may be nil for runtimes not managed by a
// RuntimeManager.
func NewHostFunctionHandler(owner *RuntimeManager, rt *goja.Runtime, value goja.Value) (*HostFunctionHandler, error) {
	if rt == nil {
		return nil, fmt.Errorf("%w: runtime is nil", ErrInvalidFunctionValue)
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, fmt.Errorf("%w: value is %v", ErrInvalidFunctionValue, value)
	}

	call, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("%w: value of type %s is not callable", ErrInvalidFunctionValue, value.ExportType())
	}

	nameVal := value.ToObject(rt).Get("name")
	if nameVal == nil || goja.IsUndefined(nameVal) || goja.IsNull(nameVal) {
		return nil, fmt.Errorf("%w: function has no name property", ErrInvalidFunctionValue)
	}
	name, ok := nameVal.Export().(string)
	if !ok {
		return nil, fmt.Errorf("%w: function name is not a string", ErrInvalidFunctionValue)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: function is anonymous", ErrInvalidFunctionValue)
	}

	return &HostFunctionHandler{
		fn:    value,
		call:  call,
		name:  name,
		rt:    rt,
		owner: owner,
	}, nil
}

// Name returns the function's declared name.
func (h *HostFunctionHandler) Name() string {
	return h.name
}

// Runtime returns the manager of the runtime the function was captured from.
func (h *HostFunctionHandler) Runtime() *RuntimeManager {
	return h.owner
}

// PureFunction returns the captured function value.
// Runtime thread only.
func (h *HostFunctionHandler) PureFunction() goja.Value {
	return h.fn
}

// Call invokes the function with an undefined receiver.
// Runtime thread only.
func (h *HostFunctionHandler) Call(args ...goja.Value) (goja.Value, error) {
	return h.call(goja.Undefined(), args...)
}
