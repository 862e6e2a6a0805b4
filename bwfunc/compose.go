package bwfunc

import (
	"context"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Middleware is a handler function tagged with its component identity.
type Middleware struct {
	// Name is the component identity used for frames, spans and diagnostics.
	Name string
	// Fn is the handler.
	Fn HandlerFunc
}

// Wrap tags fn with an identity derived from its function name, for example
// "HandlerFunc:authenticate". Function literals become "HandlerFunc:[anonymous]".
func Wrap(fn HandlerFunc) Middleware {
	return Middleware{Name: componentName("HandlerFunc", functionName(fn)), Fn: fn}
}

// Named tags fn with an explicit identity.
func Named(name string, fn HandlerFunc) Middleware {
	return Middleware{Name: name, Fn: fn}
}

// Composed runs a composed chain of middleware. When the last middleware
// calls next, terminal is invoked as if it were appended to the chain. A nil
// terminal turns that call into a no-op.
type Composed func(ctx context.Context, inv *Invocation, terminal HandlerFunc) error

type composeOptions struct {
	tracer  trace.Tracer
	observe func(*Frame)
	now     func() time.Time
}

// ComposeOption configures Compose.
type ComposeOption func(*composeOptions)

// WithTracer starts a span for every middleware frame.
func WithTracer(tracer trace.Tracer) ComposeOption {
	return func(o *composeOptions) { o.tracer = tracer }
}

// WithFrameObserver is called with every frame that completed without error.
func WithFrameObserver(fn func(*Frame)) ComposeOption {
	return func(o *composeOptions) { o.observe = fn }
}

// Compose builds a single onion-style callable from an ordered chain of
// middleware. Middleware i receives a next continuation that runs middleware
// i+1. Every activation is recorded as a Frame on Invocation.Stack and the
// diagnostic scope "component" always names the active middleware.
func Compose(mws []Middleware, opts ...ComposeOption) (Composed, error) {
	for i, mw := range mws {
		if mw.Fn == nil {
			return nil, errors.Wrapf(ErrInvalidInput, "middleware at index %d", i)
		}
	}

	o := composeOptions{
		tracer: noop.NewTracerProvider().Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	chain := slices.Clone(mws)
	return func(ctx context.Context, inv *Invocation, terminal HandlerFunc) error {
		inv.ensureDefaults()
		d := &dispatcher{inv: inv, chain: chain, opts: o}
		if terminal != nil {
			d.terminal = &Middleware{Name: componentName("HandlerFunc", functionName(terminal)), Fn: terminal}
		}
		return d.dispatch(ctx, 0)
	}, nil
}

type dispatcher struct {
	inv      *Invocation
	chain    []Middleware
	terminal *Middleware
	opts     composeOptions
}

func (d *dispatcher) dispatch(ctx context.Context, i int) error {
	var mw Middleware
	switch {
	case i < len(d.chain):
		mw = d.chain[i]
	case i == len(d.chain) && d.terminal != nil:
		mw = *d.terminal
	default:
		return nil
	}

	inv := d.inv
	frame := &Frame{Index: i, Component: mw.Name}
	inv.Stack = append(inv.Stack, frame)
	depth := len(inv.Stack)
	frame.BeforeInvoke = d.opts.now()
	inv.Diag.SetScope(bwdiag.Fields{ScopeComponent: mw.Name})
	inv.Diag.Trace("BEGIN: " + mw.Name)

	ctx, span := d.opts.tracer.Start(ctx, mw.Name, trace.WithAttributes(
		attribute.Int("bwfunc.middleware.index", i),
		attribute.String("bwfunc.lifecycle", string(inv.Phase)),
	))
	defer span.End()

	var (
		called  bool
		downErr error
		failed  []*Frame
	)
	next := func(ctx context.Context) error {
		if called {
			return errors.WithStack(ErrDoubleNext)
		}
		called = true
		frame.BeforeNext = d.opts.now()
		err := d.dispatch(ctx, i+1)
		frame.AfterNext = d.opts.now()

		// frames left behind by a failing downstream are set aside while this
		// middleware keeps running
		if len(inv.Stack) > depth {
			failed = slices.Clone(inv.Stack[depth:])
			inv.Stack = inv.Stack[:depth]
		}
		downErr = err
		inv.Diag.SetScope(bwdiag.Fields{ScopeComponent: mw.Name})
		return err
	}

	if err := call(ctx, inv, mw, next); err != nil {
		// failing frames stay on the stack so the caller can tell which
		// component failed. Downstream frames are put back when the error
		// came from there.
		inv.Stack = inv.Stack[:depth]
		if downErr != nil && errors.Is(err, downErr) {
			inv.Stack = append(inv.Stack, failed...)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	frame.AfterInvoke = d.opts.now()
	inv.Stack = inv.Stack[:depth-1]
	inv.Diag.Trace(bwdiag.Fields{
		bwdiag.FieldMsg: "END: " + mw.Name,
		"duration":      frame.Duration(),
		"execution":     frame.Execution(),
	})
	if d.opts.observe != nil {
		d.opts.observe(frame)
	}
	return nil
}

// call runs a single middleware and turns a panic into an error.
func call(ctx context.Context, inv *Invocation, mw Middleware, next Next) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("panic in %s: %v", mw.Name, r), ErrPanic)
		}
	}()
	return mw.Fn(ctx, inv, next)
}

// closureName matches the compiler generated names of function literals,
// e.g. "func1" or "func1.2".
var closureName = regexp.MustCompile(`^func\d+$|^\d+$`)

// functionName returns the short name of fn, "[anonymous]" for literals.
func functionName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "[anonymous]"
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "[anonymous]"
	}

	full := rf.Name()
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	parts := strings.Split(full, ".")
	if len(parts) < 2 {
		return "[anonymous]"
	}
	last := strings.TrimSuffix(parts[len(parts)-1], "-fm")
	if closureName.MatchString(last) || strings.HasPrefix(last, "gowrap") {
		return "[anonymous]"
	}
	return last
}

func componentName(owner, fn string) string {
	if owner == "" {
		owner = "[anonymous]"
	}
	return owner + ":" + fn
}
