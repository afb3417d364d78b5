package core

import "errors"

var (
	// ErrNoJSCallInvoker is the panic value when a job is scheduled on the JS
	// thread before a call invoker was wired. It is a setup error.
	ErrNoJSCallInvoker = errors.New("scheduler: js call invoker is not set")

	// ErrAlreadyWired is the panic value when a one-time association is repeated.
	ErrAlreadyWired = errors.New("scheduler: association already set")

	// ErrThreadClosed is returned when waiting on a thread that has been stopped.
	ErrThreadClosed = errors.New("thread is closed")
)
