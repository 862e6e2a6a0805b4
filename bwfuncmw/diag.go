package bwfuncmw

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/basewarphq/bwfunc/bwfunc"
	"go.opentelemetry.io/otel/trace"
)

// Diagnostic field names set by LambdaFields and TraceFields.
const (
	FieldFunctionName    = "functionName"
	FieldFunctionVersion = "functionVersion"
	FieldRequestID       = "awsRequestId"
	FieldTraceID         = "trace_id"
	FieldSpanID          = "span_id"
)

// LambdaFields is a plugin that adds Lambda context to every diagnostic
// record. On a cold start it sets the function name and version as
// environment fields, which persist across warm invocations. On every
// request it scopes the records of the invocation to its request id.
type LambdaFields struct{}

// Env implements bwfunc.EnvPlugin.
func (LambdaFields) Env(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	fields := bwdiag.Fields{}
	if lambdacontext.FunctionName != "" {
		fields[FieldFunctionName] = lambdacontext.FunctionName
	}
	if lambdacontext.FunctionVersion != "" {
		fields[FieldFunctionVersion] = lambdacontext.FunctionVersion
	}
	inv.Diag.SetEnv(fields)
	return next(ctx)
}

// Request implements bwfunc.RequestPlugin.
func (LambdaFields) Request(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	if lc, ok := inv.Context.(*lambdacontext.LambdaContext); ok && lc.AwsRequestID != "" {
		inv.Diag.SetScope(bwdiag.Fields{FieldRequestID: lc.AwsRequestID})
	}
	return next(ctx)
}

// TraceFields returns request middleware that scopes the diagnostic records
// of the invocation to the active trace, for log correlation.
func TraceFields() bwfunc.Middleware {
	return bwfunc.Named("TraceFields:Request", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			inv.Diag.SetScope(bwdiag.Fields{
				FieldTraceID: sc.TraceID().String(),
				FieldSpanID:  sc.SpanID().String(),
			})
		}
		return next(ctx)
	})
}
