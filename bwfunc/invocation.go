package bwfunc

import (
	"context"

	"github.com/basewarphq/bwfunc/bwdiag"
)

// StateColdStart is the Invocation.State key that Invoke sets to true on a
// cold start and to false on a warm invocation.
const StateColdStart = "coldstart"

// Scope field names maintained by bwfunc on the diagnostic context.
const (
	ScopeComponent = "component"
	ScopeLifecycle = "lifecycle"
)

// Next continues with the downstream middleware. It may be called at most
// once per middleware activation.
type Next func(ctx context.Context) error

// HandlerFunc is the signature of every middleware.
type HandlerFunc func(ctx context.Context, inv *Invocation, next Next) error

// Invocation is the per-invocation context handed to every middleware.
// Fields left nil by the caller are filled in on first use by the Func; values
// set by the caller are never overwritten, except Environment on a warm
// invocation which always points at the persisted instance environment.
type Invocation struct {
	// Environment is shared by all invocations of the same instance. It is
	// populated by env middleware on a cold start.
	Environment map[string]any
	// Event is the platform input of the invocation.
	Event any
	// Context is the platform context of the invocation.
	Context any
	// State is per-invocation scratch space for middleware.
	State map[string]any
	// Response is returned by Invoke. Set by exactly one middleware.
	Response any
	// Error is set when a failure escaped the env, start or request lifecycle.
	Error *InvocationError
	// Phase is the lifecycle currently (or last) running.
	Phase Lifecycle
	// Diag is the diagnostic context of this invocation.
	Diag *bwdiag.Context
	// Func is the instance running the invocation.
	Func *Func
	// Stack holds the frames of the currently executing middleware, outermost first.
	Stack []*Frame
}

// Top returns the innermost active frame, or nil when the stack is empty.
func (inv *Invocation) Top() *Frame {
	if len(inv.Stack) == 0 {
		return nil
	}
	return inv.Stack[len(inv.Stack)-1]
}

// IsColdStart reports whether Invoke marked this invocation as a cold start.
func (inv *Invocation) IsColdStart() bool {
	cold, _ := inv.State[StateColdStart].(bool)
	return cold
}

// ensureDefaults fills in the fields needed to dispatch middleware without
// a Func. Func.init fills in the rest.
func (inv *Invocation) ensureDefaults() {
	if inv.Environment == nil {
		inv.Environment = map[string]any{}
	}
	if inv.State == nil {
		inv.State = map[string]any{}
	}
	if inv.Diag == nil {
		inv.Diag = bwdiag.New()
	}
	if inv.Stack == nil {
		inv.Stack = []*Frame{}
	}
}
