package bwfunc

import (
	"context"
	"os"
	"time"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/cockroachdb/errors"
	"github.com/iancoleman/strcase"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appStopTimeout = 5 * time.Second

type appOptions struct {
	fxOptions  []fx.Option
	registerer prometheus.Registerer
	funcOpts   []Option
}

// AppOption configures an App.
type AppOption func(*appOptions)

// WithFx adds fx options, e.g. providers for dependencies of the register
// function.
func WithFx(opts ...fx.Option) AppOption {
	return func(o *appOptions) { o.fxOptions = append(o.fxOptions, opts...) }
}

// WithPrometheus records Func metrics into reg.
func WithPrometheus(reg prometheus.Registerer) AppOption {
	return func(o *appOptions) { o.registerer = reg }
}

// WithFuncOptions passes extra options to New, applied after the
// environment configuration.
func WithFuncOptions(opts ...Option) AppOption {
	return func(o *appOptions) { o.funcOpts = append(o.funcOpts, opts...) }
}

// App wires a Func with configuration, logging, tracing and metrics using fx.
type App struct {
	fx *fx.App
	fn *Func
}

// NewApp creates an App. register is an fx invoke function that receives the
// *Func (and any other provided dependency) and registers middleware:
//
//	bwfunc.NewApp(func(f *bwfunc.Func, h *Handlers) error {
//	    return f.Request(h)
//	}, bwfunc.WithFx(fx.Provide(NewHandlers))).Run()
func NewApp(register any, opts ...AppOption) *App {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	fxOpts := []fx.Option{
		fx.Provide(
			ParseConfig,
			NewSink,
			NewLogger,
			NewTracerProvider,
			NewPropagator,
			func(cfg Config) (Metrics, error) { return newAppMetrics(cfg, o.registerer) },
			func(cfg Config, sink bwdiag.Sink, tp trace.TracerProvider, prop propagation.TextMapPropagator, m Metrics) *Func {
				funcOpts := append(cfg.Options(),
					WithSink(sink),
					WithTracerProvider(tp),
					WithPropagator(prop),
					WithMetrics(m),
				)
				return New(append(funcOpts, o.funcOpts...)...)
			},
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(register),
		fx.Invoke(func(lc fx.Lifecycle, f *Func) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					f.InvokeTeardown(ctx)
					return nil
				},
			})
		}),
		fx.Populate(&a.fn),
	}
	a.fx = fx.New(append(fxOpts, o.fxOptions...)...)
	return a
}

// Func returns the wired Func, nil when the app failed to build.
func (a *App) Func() *Func {
	return a.fn
}

// Err returns the error that occurred while building the app, if any.
func (a *App) Err() error {
	return a.fx.Err()
}

// Start runs the fx start hooks.
func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

// Stop runs the fx stop hooks: teardown of the Func and tracer shutdown.
func (a *App) Stop(ctx context.Context) error {
	return a.fx.Stop(ctx)
}

// Run starts the app and serves Lambda invocations until the sandbox shuts
// down. It exits the process when the app cannot start.
func (a *App) Run() {
	if err := a.Err(); err != nil {
		fail(errors.Wrap(err, "failed to build app"))
	}
	if err := a.Start(context.Background()); err != nil {
		fail(errors.Wrap(err, "failed to start app"))
	}

	serve(a.fn, func() {
		ctx, cancel := context.WithTimeout(context.Background(), appStopTimeout)
		defer cancel()
		_ = a.Stop(ctx)
	})
}

func fail(err error) {
	bwdiag.New(bwdiag.WithSink(bwdiag.NewZapSink(os.Stderr, false))).Fatal(err)
	os.Exit(1)
}

// NewSink is an fx provider for the diagnostic sink described by cfg.
func NewSink(cfg Config) bwdiag.Sink {
	return bwdiag.NewZapSink(os.Stdout, cfg.LogPretty)
}

// NewLogger is an fx provider for the zap logger used for app events. It
// writes through the same core as the diagnostic sink when that is a ZapSink.
func NewLogger(cfg Config, sink bwdiag.Sink) (*zap.Logger, error) {
	zs, ok := sink.(*bwdiag.ZapSink)
	if !ok {
		return zap.NewNop(), nil
	}
	core, err := zapcore.NewIncreaseLevelCore(zs.Core(), bwdiag.ZapLevel(cfg.LogLevel))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger core")
	}
	return zap.New(core), nil
}

func newAppMetrics(cfg Config, reg prometheus.Registerer) (Metrics, error) {
	if reg == nil {
		return NewNoopMetrics(), nil
	}
	return NewPrometheusMetrics(strcase.ToSnake(cfg.ServiceName), reg)
}
