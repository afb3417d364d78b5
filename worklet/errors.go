package worklet

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrInvalidFunctionValue is returned when a captured value is not a named function.
	ErrInvalidFunctionValue = errors.New("invalid function value")

	// ErrRuntimeDestroyed is returned once a runtime manager has been torn down.
	ErrRuntimeDestroyed = errors.New("worklet runtime destroyed")

	// ErrWorkletNotFound is returned when a named worklet is not defined on the runtime.
	ErrWorkletNotFound = errors.New("worklet not found")

	// ErrRemoteNotFound is returned when runOnJS names a function that was never made remote.
	ErrRemoteNotFound = errors.New("remote function not registered")

	// ErrIncompatibleValue is returned when a value cannot cross between runtimes.
	ErrIncompatibleValue = errors.New("value cannot be shared between runtimes")

	// ErrAlreadyLinked is returned when linking runtime managers twice.
	ErrAlreadyLinked = errors.New("runtime managers already linked")
)

// errorMessage extracts the message a worklet threw, verbatim. For thrown Error
// objects that is the message property; for other thrown values their string form.
func errorMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			if obj, ok := v.(*goja.Object); ok {
				if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
					return msg.String()
				}
			}
			return v.String()
		}
	}
	return err.Error()
}

// panicMessage converts a recovered panic value into a report message.
func panicMessage(r any) string {
	switch v := r.(type) {
	case error:
		return errorMessage(v)
	case goja.Value:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
