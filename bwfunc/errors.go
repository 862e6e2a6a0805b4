package bwfunc

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidMiddleware is returned when registering something that is not a
	// handler function, a Middleware, a plugin or a slice of those.
	ErrInvalidMiddleware = errors.New("middleware must be a plugin, a function or a slice of plugins/functions")
	// ErrInvalidLifecycle is returned when registering for an unknown lifecycle.
	ErrInvalidLifecycle = errors.New("invalid lifecycle")
	// ErrInvalidInput is returned by Compose when an entry has no function.
	ErrInvalidInput = errors.New("middleware must be composed of functions")
	// ErrDoubleNext is returned when a middleware calls its next continuation twice.
	ErrDoubleNext = errors.New("next() called multiple times")
	// ErrPanic marks errors recovered from a panicking middleware.
	ErrPanic = errors.New("middleware panicked")
	// ErrErrorPhase marks errors returned by the error lifecycle itself. These
	// are logged and never propagate out of Invoke.
	ErrErrorPhase = errors.New("error in error middleware")
)

// InvocationError is an error that escaped the env, start or request
// lifecycle. It is attached to Invocation.Error before the error lifecycle
// runs.
type InvocationError struct {
	// Err is the underlying cause.
	Err error
	// Phase is the lifecycle that was running when the error escaped.
	Phase Lifecycle
	// Component is the identity of the middleware on top of the frame stack.
	Component string
	// Expose signals that the error message may be returned to the caller.
	// Set outside of production mode.
	Expose bool
	// Stacktrace signals that the stack trace may be returned to the caller.
	// Set outside of production mode.
	Stacktrace bool
}

func (e *InvocationError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *InvocationError) Unwrap() error {
	return e.Err
}
