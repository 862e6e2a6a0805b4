package bwfunc

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/basewarphq/bwfunc/bwdiag"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Modes accepted by WithMode. Any mode other than ModeProduction exposes
// error details to the error lifecycle.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// SystemComponent is the diagnostic component name used outside of middleware.
const SystemComponent = "bwfunc"

// Func is a single function instance: the middleware registries of all five
// lifecycles plus the started/expired state that decides whether an
// invocation is a cold start.
//
// Func does not serialize invocations. When a host invokes the same Func
// concurrently, invocations share the environment map and may both observe a
// cold start, in which case each runs teardown, env and start and the last
// one to finish wins.
type Func struct {
	mu          sync.Mutex
	middleware  map[Lifecycle][]Middleware
	started     bool
	expiry      time.Duration
	expiresAt   time.Time
	environment map[string]any

	mode       string
	diag       *bwdiag.Context
	now        func() time.Time
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	metrics    Metrics
}

type funcOptions struct {
	mode    string
	expiry  time.Duration
	level   bwdiag.Level
	pretty  bool
	sink    bwdiag.Sink
	diag    *bwdiag.Context
	now     func() time.Time
	tp      trace.TracerProvider
	prop    propagation.TextMapPropagator
	metrics Metrics
}

// Option configures a Func.
type Option func(*funcOptions)

// WithMode sets the environment mode. Defaults to ModeDevelopment.
func WithMode(mode string) Option {
	return func(o *funcOptions) { o.mode = mode }
}

// WithExpiry sets the instance expiry. Zero, the default, never expires.
func WithExpiry(d time.Duration) Option {
	return func(o *funcOptions) { o.expiry = d }
}

// WithLogLevel sets the diagnostic threshold. Defaults to info.
func WithLogLevel(l bwdiag.Level) Option {
	return func(o *funcOptions) { o.level = l }
}

// WithPrettyLogs renders diagnostics in a console layout instead of JSON.
func WithPrettyLogs(pretty bool) Option {
	return func(o *funcOptions) { o.pretty = pretty }
}

// WithSink sets the sink diagnostics are written to.
func WithSink(s bwdiag.Sink) Option {
	return func(o *funcOptions) { o.sink = s }
}

// WithDiag uses diag as the baseline diagnostic context. It takes precedence
// over WithLogLevel, WithPrettyLogs and WithSink.
func WithDiag(diag *bwdiag.Context) Option {
	return func(o *funcOptions) { o.diag = diag }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *funcOptions) { o.now = now }
}

// WithTracerProvider traces every lifecycle and middleware frame.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *funcOptions) { o.tp = tp }
}

// WithPropagator sets the propagator used to continue the platform trace.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *funcOptions) { o.prop = prop }
}

// WithMetrics records invocation metrics.
func WithMetrics(m Metrics) Option {
	return func(o *funcOptions) { o.metrics = m }
}

// New creates a Func that has never been started.
func New(opts ...Option) *Func {
	o := funcOptions{
		mode:  ModeDevelopment,
		level: bwdiag.LevelInfo,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	diag := o.diag
	if diag == nil {
		if o.sink == nil {
			o.sink = bwdiag.NewZapSink(nil, o.pretty)
		}
		diag = bwdiag.New(bwdiag.WithLevel(o.level), bwdiag.WithSink(o.sink))
	}
	diag.SetScope(systemScope())

	if o.tp == nil {
		o.tp = noop.NewTracerProvider()
	}
	if o.prop == nil {
		o.prop = defaultPropagator()
	}
	if o.metrics == nil {
		o.metrics = NewNoopMetrics()
	}

	f := &Func{
		middleware:  make(map[Lifecycle][]Middleware, len(Lifecycles)),
		environment: map[string]any{},
		mode:        o.mode,
		diag:        diag,
		now:         o.now,
		tracer:      o.tp.Tracer(tracerName),
		propagator:  o.prop,
		metrics:     o.metrics,
	}
	f.SetExpiration(o.expiry)
	return f
}

// Mode returns the environment mode.
func (f *Func) Mode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SetMode changes the environment mode.
func (f *Func) SetMode(mode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
}

// Diag returns the baseline diagnostic context. Every invocation works on a
// fork of it.
func (f *Func) Diag() *bwdiag.Context {
	return f.diag
}

// Middleware returns a copy of the registry of lc.
func (f *Func) Middleware(lc Lifecycle) []Middleware {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.middleware[lc])
}

// Started reports whether start completed since the last teardown.
func (f *Func) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Environment returns a copy of the persisted instance environment.
func (f *Func) Environment() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.environment)
}

// SetExpiration restarts the expiry clock with duration d from now. Zero or
// a negative duration disables expiry.
func (f *Func) SetExpiration(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setExpirationLocked(d, f.now())
}

func (f *Func) setExpirationLocked(d time.Duration, t time.Time) {
	if d <= 0 {
		f.expiry = 0
		f.expiresAt = time.Time{}
		return
	}
	f.expiry = d
	f.expiresAt = t.Add(d)
}

// Expiry returns the configured expiry duration, zero when disabled.
func (f *Func) Expiry() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiry
}

// ExpiresAt returns the current deadline. ok is false when expiry is disabled.
func (f *Func) ExpiresAt() (t time.Time, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiresAt, !f.expiresAt.IsZero()
}

// IsExpired reports whether the expiry deadline has passed.
func (f *Func) IsExpired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isExpiredLocked(f.now())
}

func (f *Func) isExpiredLocked(t time.Time) bool {
	return !f.expiresAt.IsZero() && !f.expiresAt.After(t)
}

// IsColdStart reports whether the next invocation has to run env and start,
// either because the instance never started or because it expired.
func (f *Func) IsColdStart() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.started || f.isExpiredLocked(f.now())
}

func systemScope() bwdiag.Fields {
	return bwdiag.Fields{
		ScopeComponent: SystemComponent,
		ScopeLifecycle: "system",
	}
}
