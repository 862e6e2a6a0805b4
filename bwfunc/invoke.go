package bwfunc

import (
	"context"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type invokeOptions struct {
	forceColdStart bool
}

// InvokeOption configures a single Invoke call.
type InvokeOption func(*invokeOptions)

// WithForceColdStart runs teardown (when started), env and start even if the
// instance is warm.
func WithForceColdStart() InvokeOption {
	return func(o *invokeOptions) { o.forceColdStart = true }
}

// Invoke runs one invocation and returns inv.Response.
//
// On a cold start (never started, expired or forced) it runs teardown when
// the instance was started before, then env and start. It always runs
// request afterwards. Any error escaping these lifecycles is recorded on
// inv.Error and handed to the error lifecycle; Invoke itself never fails.
func (f *Func) Invoke(ctx context.Context, inv *Invocation, opts ...InvokeOption) any {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}

	ownEnv := inv.Environment != nil
	f.init(inv)

	cold := f.IsColdStart() || o.forceColdStart
	ctx, span := f.tracer.Start(ctx, "invoke", trace.WithAttributes(
		attribute.Bool("faas.coldstart", cold),
	))
	defer span.End()

	if err := f.run(ctx, inv, cold, ownEnv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.handleError(ctx, inv, err)
	}

	f.metrics.Invocation(cold, inv.Error != nil)
	return inv.Response
}

func (f *Func) run(ctx context.Context, inv *Invocation, cold, ownEnv bool) error {
	if !cold {
		inv.State[StateColdStart] = false
		f.mu.Lock()
		inv.Environment = f.environment
		f.mu.Unlock()
	} else {
		inv.State[StateColdStart] = true
		if f.Started() {
			f.teardown(ctx, inv)
			inv.Diag.ClearEnv()
			if !ownEnv {
				f.mu.Lock()
				inv.Environment = f.environment
				f.mu.Unlock()
			}
		}

		inv.Diag.Trace("--------------- ENV BEGIN ---------------")
		if err := f.InvokeEnv(ctx, inv); err != nil {
			return err
		}
		f.persist(inv)
		inv.Diag.Trace(bwdiag.Fields{bwdiag.FieldMsg: "environment resolved", "env": inv.Environment})
		inv.Diag.Trace("--------------- ENV END ---------------")

		inv.Diag.Trace("--------------- START BEGIN ---------------")
		if err := f.InvokeStart(ctx, inv); err != nil {
			return err
		}
		f.persist(inv)
		inv.Diag.Trace("--------------- START END ---------------")
	}

	inv.Diag.Trace("--------------- REQUEST BEGIN ---------------")
	if err := f.InvokeRequest(ctx, inv); err != nil {
		return err
	}
	inv.Diag.Trace("--------------- REQUEST END ---------------")
	return nil
}

// persist captures the invocation environment and diagnostic environment
// fields as the instance baseline.
func (f *Func) persist(inv *Invocation) {
	f.mu.Lock()
	f.environment = inv.Environment
	f.mu.Unlock()
	f.diag.SetEnv(inv.Diag.Env(), bwdiag.Replace())
}

func (f *Func) handleError(ctx context.Context, inv *Invocation, err error) {
	inv.Diag.Trace("--------------- ERROR BEGIN ---------------")

	component := "[unknown]"
	if top := inv.Top(); top != nil {
		component = top.Component
	}
	inv.Error = &InvocationError{Err: err, Phase: inv.Phase, Component: component}
	f.metrics.PhaseError(inv.Phase)

	inv.Diag.Error("Uncaught error in " + component)
	inv.Diag.Error(err)

	if err := f.InvokeError(ctx, inv); err != nil {
		err = errors.Mark(errors.Wrap(err, "error middleware"), ErrErrorPhase)
		f.metrics.PhaseError(LifecycleError)
		inv.Diag.Error("Uncaught error in error middleware")
		inv.Diag.Error(err)
	}
	inv.Diag.Trace("--------------- ERROR END ---------------")
}

// InvokeEnv runs the env lifecycle on inv.
func (f *Func) InvokeEnv(ctx context.Context, inv *Invocation) error {
	f.init(inv)
	return f.runPhase(ctx, inv, LifecycleEnv)
}

// InvokeStart runs the start lifecycle on inv and marks the instance as
// started once it completes without error. The expiry clock restarts when
// the instance had not started yet or had expired.
func (f *Func) InvokeStart(ctx context.Context, inv *Invocation) error {
	f.init(inv)

	f.mu.Lock()
	now := f.now()
	if !f.started || f.isExpiredLocked(now) {
		f.setExpirationLocked(f.expiry, now)
	}
	f.mu.Unlock()

	if err := f.runPhase(ctx, inv, LifecycleStart); err != nil {
		return err
	}

	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

// InvokeRequest runs the request lifecycle on inv.
func (f *Func) InvokeRequest(ctx context.Context, inv *Invocation) error {
	f.init(inv)
	return f.runPhase(ctx, inv, LifecycleRequest)
}

// InvokeError runs the error lifecycle on inv. Outside of production mode
// inv.Error is flagged for exposure first.
func (f *Func) InvokeError(ctx context.Context, inv *Invocation) error {
	f.init(inv)
	if inv.Error != nil && f.Mode() != ModeProduction {
		inv.Error.Expose = true
		inv.Error.Stacktrace = true
	}
	return f.runPhase(ctx, inv, LifecycleError)
}

// InvokeTeardown runs every teardown middleware, each in isolation so that a
// failing one does not stop the others, and resets the instance so the next
// invocation is a cold start.
func (f *Func) InvokeTeardown(ctx context.Context) {
	inv := &Invocation{}
	f.init(inv)
	f.teardown(ctx, inv)
}

func (f *Func) teardown(ctx context.Context, inv *Invocation) {
	ctx, span := f.tracer.Start(ctx, string(LifecycleTeardown))
	defer span.End()

	inv.Phase = LifecycleTeardown
	inv.Diag.SetScope(bwdiag.Fields{ScopeLifecycle: LifecycleTeardown.String()})
	inv.Diag.Trace("--------------- TEARDOWN BEGIN ---------------")

	for _, mw := range f.Middleware(LifecycleTeardown) {
		base := len(inv.Stack)
		composed, err := Compose([]Middleware{mw}, f.composeOptions(LifecycleTeardown)...)
		if err == nil {
			err = composed(ctx, inv, nil)
		}
		if err != nil {
			span.RecordError(err)
			f.metrics.PhaseError(LifecycleTeardown)
			inv.Diag.Error("Uncaught error in " + mw.Name)
			inv.Diag.Error(err)
		}
		inv.Stack = inv.Stack[:base]
	}

	f.mu.Lock()
	f.started = false
	f.environment = map[string]any{}
	f.setExpirationLocked(f.expiry, f.now())
	f.mu.Unlock()

	f.diag.ClearEnv()
	f.diag.SetScope(systemScope(), bwdiag.Replace())
	f.metrics.Teardown()

	inv.Diag.Trace("--------------- TEARDOWN END ---------------")
	inv.Diag.SetScope(systemScope())
}

// runPhase composes the registry of lc and dispatches it once without a
// terminal. The system scope is restored when it completes without error.
func (f *Func) runPhase(ctx context.Context, inv *Invocation, lc Lifecycle) error {
	ctx, span := f.tracer.Start(ctx, string(lc))
	defer span.End()

	inv.Phase = lc
	inv.Diag.SetScope(bwdiag.Fields{ScopeLifecycle: lc.String()})

	composed, err := Compose(f.Middleware(lc), f.composeOptions(lc)...)
	if err != nil {
		return err
	}
	if err := composed(ctx, inv, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	inv.Diag.SetScope(systemScope())
	return nil
}

func (f *Func) composeOptions(lc Lifecycle) []ComposeOption {
	return []ComposeOption{
		WithTracer(f.tracer),
		WithFrameObserver(func(fr *Frame) { f.metrics.Middleware(lc, fr) }),
	}
}

// init fills in every Invocation field the caller left unset.
func (f *Func) init(inv *Invocation) {
	if inv.Environment == nil {
		f.mu.Lock()
		inv.Environment = f.environment
		f.mu.Unlock()
	}
	if inv.Event == nil {
		inv.Event = map[string]any{}
	}
	if inv.Context == nil {
		inv.Context = map[string]any{}
	}
	if inv.Diag == nil {
		inv.Diag = f.diag.Fork()
	}
	if inv.Func == nil {
		inv.Func = f
	}
	inv.ensureDefaults()
}
