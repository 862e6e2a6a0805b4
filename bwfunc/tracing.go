package bwfunc

import (
	"context"

	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	lambdadetector "go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

const tracerName = "github.com/basewarphq/bwfunc"

// Exporters accepted in Config.OtelExporter.
const (
	ExporterNone    = "none"
	ExporterStdout  = "stdout"
	ExporterXRayUDP = "xrayudp"
)

// NewTracerProvider is an fx provider for the tracer provider selected by
// cfg.OtelExporter. Pending spans are flushed when the app stops.
func NewTracerProvider(lc fx.Lifecycle, cfg Config) (trace.TracerProvider, error) {
	tp, shutdown, err := NewTracerProviderFromConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return tp, nil
}

// NewTracerProviderFromConfig creates the tracer provider selected by
// cfg.OtelExporter and a function that flushes and shuts it down.
func NewTracerProviderFromConfig(ctx context.Context, cfg Config) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.OtelExporter == ExporterNone {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg.OtelExporter)
	if err != nil {
		return nil, nil, err
	}
	res, err := newResource(ctx, cfg.OtelExporter, cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		// Lambda may freeze the sandbox between invocations, so spans are
		// exported synchronously instead of batched.
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	}
	if cfg.OtelExporter == ExporterXRayUDP {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	return tp, tp.Shutdown, nil
}

// NewPropagator returns the X-Ray propagator when exporting to X-Ray and a
// composite of W3C trace context, baggage and X-Ray otherwise.
func NewPropagator(cfg Config) propagation.TextMapPropagator {
	if cfg.OtelExporter == ExporterXRayUDP {
		return xray.Propagator{}
	}
	return defaultPropagator()
}

func defaultPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	)
}

func newExporter(ctx context.Context, kind string) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterStdout, "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterXRayUDP:
		return xrayudp.NewSpanExporter(ctx)
	default:
		return nil, errors.Newf("unsupported OTEL_EXPORTER: %q (supported: none, stdout, xrayudp)", kind)
	}
}

func newResource(ctx context.Context, kind, serviceName string) (*resource.Resource, error) {
	svc := resource.NewSchemaless(attribute.String("service.name", serviceName))
	if kind != ExporterXRayUDP {
		return svc, nil
	}

	detected, err := lambdadetector.NewResourceDetector().Detect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "detect lambda resource")
	}
	return resource.Merge(detected, svc)
}
