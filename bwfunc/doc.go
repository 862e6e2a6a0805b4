// Package bwfunc runs serverless function invocations through five
// middleware lifecycles and manages the cold start of the function instance.
//
// # Overview
//
// A [Func] keeps one ordered middleware registry per lifecycle:
//
//   - env: resolves the instance environment, runs on a cold start
//   - start: initializes instance resources, runs on a cold start after env
//   - request: handles the event and sets the response, runs on every invocation
//   - error: runs when an error escaped env, start or request
//   - teardown: releases instance resources before a restart or on shutdown
//
// Middleware is onion style. Each one receives a next continuation that runs
// the rest of the chain and may be called at most once:
//
//	f := bwfunc.New(bwfunc.WithExpiry(15 * time.Minute))
//	f.Env(func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
//	    inv.Environment["table"] = os.Getenv("TABLE_NAME")
//	    return next(ctx)
//	})
//	f.Request(func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
//	    inv.Response = map[string]any{"table": inv.Environment["table"]}
//	    return next(ctx)
//	})
//
//	resp := f.Invoke(ctx, &bwfunc.Invocation{Event: event})
//
// # Cold Starts and Expiry
//
// The first invocation of an instance is a cold start: env and start run
// before request. Later invocations are warm and only run request, until the
// expiry configured with [WithExpiry] passes. An expired instance runs
// teardown, env and start again on its next invocation. [WithForceColdStart]
// forces the same restart for a single invocation.
//
// The expiry clock restarts whenever start runs on an instance that was not
// started or had expired. Zero disables expiry.
//
// # Plugins
//
// A plugin is any value with one or more lifecycle methods, see [EnvPlugin],
// [StartPlugin], [RequestPlugin], [ErrorPlugin] and [TeardownPlugin]. Passing
// a plugin to any registration method binds all of its lifecycle methods:
//
//	type Cache struct{ client *redis.Client }
//
//	func (c *Cache) Start(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error
//	func (c *Cache) Teardown(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error
//
//	f.Plugin(&Cache{})
//
// # Frames and Diagnostics
//
// Every active middleware is recorded as a [Frame] on [Invocation].Stack with
// its timing marks. [Frame.Execution] is the self time of the middleware,
// without the time spent downstream.
//
// Each invocation gets its own [bwdiag.Context] forked from the instance
// baseline. The scope fields "component" and "lifecycle" always name the
// running middleware and lifecycle, and environment fields set during env or
// start persist across warm invocations until teardown.
//
// # Errors
//
// An error or panic escaping env, start or request is recorded on
// [Invocation].Error as an [InvocationError] naming the failing component,
// logged, and handed to the error lifecycle. Outside of production mode the
// error is flagged with Expose and Stacktrace so error middleware may return
// its details to the caller. Errors returned by error middleware are logged
// and marked with [ErrErrorPhase]; [Func.Invoke] never fails.
//
// # Concurrency
//
// A Func is safe to call from several goroutines, but it does not serialize
// invocations. Two invocations that both observe a cold instance both run env
// and start, and the last one to finish wins the persisted environment.
// Lambda delivers one event at a time per sandbox, so this only matters when
// a Func is driven concurrently by other hosts.
//
// # Running on AWS Lambda
//
// [NewApp] wires a Func with configuration from the environment (see
// [Config]), a zap backed diagnostic sink, OpenTelemetry tracing and optional
// Prometheus metrics using [go.uber.org/fx]:
//
//	bwfunc.NewApp(func(f *bwfunc.Func, h *Handlers) error {
//	    return f.Request(h.Handle)
//	}, bwfunc.WithFx(fx.Provide(NewHandlers))).Run()
//
// Teardown runs when Lambda sends SIGTERM before shutting the sandbox down.
package bwfunc
