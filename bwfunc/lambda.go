package bwfunc

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.opentelemetry.io/otel/propagation"
)

// xrayTraceEnv is set by the Lambda runtime to the X-Ray trace header of
// the current invocation.
const xrayTraceEnv = "_X_AMZN_TRACE_ID"

// LambdaHandler is the handler signature accepted by lambda.Start.
type LambdaHandler func(ctx context.Context, event json.RawMessage) (any, error)

// Handler adapts f to the Lambda runtime. Every call builds an Invocation
// with the raw event and the *lambdacontext.LambdaContext, continues the
// X-Ray trace of the invocation and returns the invocation response. Errors
// are handled by the error lifecycle, so the handler never returns one.
func (f *Func) Handler() LambdaHandler {
	return func(ctx context.Context, event json.RawMessage) (any, error) {
		inv := &Invocation{Event: event}
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			inv.Context = lc
		}
		if header := os.Getenv(xrayTraceEnv); header != "" {
			ctx = f.propagator.Extract(ctx, propagation.MapCarrier{"X-Amzn-Trace-Id": header})
		}
		return f.Invoke(ctx, inv), nil
	}
}

// startLambda and enableSIGTERM are replaced in tests.
var (
	startLambda   = lambda.StartWithOptions
	enableSIGTERM = lambda.WithEnableSIGTERM
)

// Serve starts the Lambda runtime loop for f. It does not return. On
// SIGTERM, sent by Lambda before it shuts the sandbox down, the teardown
// lifecycle runs.
func Serve(f *Func, opts ...lambda.Option) {
	serve(f, func() { f.InvokeTeardown(context.Background()) }, opts...)
}

// serve runs the Lambda loop with f's handler and calls shutdown on SIGTERM.
func serve(f *Func, shutdown func(), opts ...lambda.Option) {
	startLambda(f.Handler(), append([]lambda.Option{enableSIGTERM(shutdown)}, opts...)...)
}
