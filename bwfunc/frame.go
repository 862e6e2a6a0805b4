package bwfunc

import "time"

// Frame records the execution window of one active middleware. Frames are
// pushed onto Invocation.Stack right before the middleware is called and
// popped right after it returns.
type Frame struct {
	// Index is the position of the middleware in its composed chain.
	Index int
	// Component is the identity of the middleware, e.g. "MyPlugin:Request".
	Component string
	// BeforeInvoke is set right before the middleware is called.
	BeforeInvoke time.Time
	// BeforeNext is set when the middleware calls its next continuation.
	BeforeNext time.Time
	// AfterNext is set when the next continuation returns.
	AfterNext time.Time
	// AfterInvoke is set when the middleware returns.
	AfterInvoke time.Time
}

// Duration is the wall time spent in the frame, including downstream middleware.
func (f *Frame) Duration() time.Duration {
	return f.AfterInvoke.Sub(f.BeforeInvoke)
}

// Execution is the self time of the frame: Duration minus the time spent
// inside the next continuation.
func (f *Frame) Execution() time.Duration {
	if f.BeforeNext.IsZero() || f.AfterNext.IsZero() {
		return f.Duration()
	}
	return f.BeforeNext.Sub(f.BeforeInvoke) + f.AfterInvoke.Sub(f.AfterNext)
}
