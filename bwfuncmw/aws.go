package bwfuncmw

import (
	"context"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// PrimaryRegionEnv names the variable that holds the primary deployment
// region used by ForPrimaryRegion.
const PrimaryRegionEnv = "BW_PRIMARY_REGION"

const awsConfigTimeout = 10 * time.Second

// ErrClientNotFound is returned by Client when no client of the requested
// type and region was registered or the instance has not started.
var ErrClientNotFound = errors.New("aws client not found")

// region selects the region a client targets.
type region struct {
	primary bool
	fixed   string
}

func (r region) resolve(local, primary string) string {
	switch {
	case r.fixed != "":
		return r.fixed
	case r.primary:
		return primary
	default:
		return local
	}
}

type clientOptions struct {
	region region
}

// ClientOption selects the region of a registered client. Without options a
// client targets the region of the loaded configuration (AWS_REGION).
type ClientOption func(*clientOptions)

// ForPrimaryRegion targets the primary deployment region, see
// PrimaryRegionEnv and WithPrimaryRegion.
func ForPrimaryRegion() ClientOption {
	return func(o *clientOptions) { o.region = region{primary: true} }
}

// ForRegion targets a fixed region.
func ForRegion(name string) ClientOption {
	return func(o *clientOptions) { o.region = region{fixed: name} }
}

type clientFactory struct {
	key    string
	region region
	build  func(aws.Config) any
}

// AWS is a plugin that manages AWS SDK v2 clients along the instance
// lifecycle. Env loads the shared configuration and instruments it with
// OpenTelemetry, start builds every registered client and teardown drops
// them, so an expired instance reloads credentials and configuration.
type AWS struct {
	mu        sync.Mutex
	factories []clientFactory
	clients   map[string]any
	cfg       *aws.Config
	primary   string

	load func(ctx context.Context) (aws.Config, error)
	tp   trace.TracerProvider
	prop propagation.TextMapPropagator
}

// AWSOption configures the AWS plugin.
type AWSOption func(*AWS)

// WithTracing instruments every client with tp and prop.
func WithTracing(tp trace.TracerProvider, prop propagation.TextMapPropagator) AWSOption {
	return func(a *AWS) {
		a.tp = tp
		a.prop = prop
	}
}

// WithPrimaryRegion sets the primary region instead of reading PrimaryRegionEnv.
func WithPrimaryRegion(name string) AWSOption {
	return func(a *AWS) { a.primary = name }
}

// WithConfigLoader replaces the default configuration loader.
func WithConfigLoader(load func(ctx context.Context) (aws.Config, error)) AWSOption {
	return func(a *AWS) { a.load = load }
}

// NewAWS creates the plugin. Register clients with RegisterClient before the
// first invocation.
func NewAWS(opts ...AWSOption) *AWS {
	a := &AWS{
		load: func(ctx context.Context) (aws.Config, error) {
			return awsconfig.LoadDefaultConfig(ctx)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterClient registers a client factory. The factory receives a copy of
// the loaded configuration with the region already set:
//
//	bwfuncmw.RegisterClient(a, dynamodb.NewFromConfig)
//	bwfuncmw.RegisterClient(a, sqs.NewFromConfig, bwfuncmw.ForRegion("us-east-1"))
func RegisterClient[T any, O any](a *AWS, factory func(aws.Config, ...func(*O)) *T, opts ...ClientOption) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.factories = append(a.factories, clientFactory{
		key:    clientKey[T](o.region),
		region: o.region,
		build:  func(cfg aws.Config) any { return factory(cfg) },
	})
}

// Client returns the client of type T for the given region selection. It
// fails with ErrClientNotFound when no such client was registered or the
// instance has not started yet.
func Client[T any](a *AWS, opts ...ClientOption) (*T, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := clientKey[T](o.region)
	a.mu.Lock()
	defer a.mu.Unlock()
	client, ok := a.clients[key].(*T)
	if !ok {
		return nil, errors.Wrapf(ErrClientNotFound, "%s", key)
	}
	return client, nil
}

// Config returns the loaded configuration, false before env ran.
func (a *AWS) Config() (aws.Config, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg == nil {
		return aws.Config{}, false
	}
	return a.cfg.Copy(), true
}

// Env implements bwfunc.EnvPlugin.
func (a *AWS) Env(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	loadCtx, cancel := context.WithTimeout(ctx, awsConfigTimeout)
	defer cancel()

	cfg, err := a.load(loadCtx)
	if err != nil {
		return errors.Wrap(err, "failed to load aws config")
	}
	if a.tp != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions,
			otelaws.WithTracerProvider(a.tp),
			otelaws.WithTextMapPropagator(a.prop),
		)
	}

	primary := a.primary
	if primary == "" {
		primary = os.Getenv(PrimaryRegionEnv)
	}

	a.mu.Lock()
	a.cfg = &cfg
	a.primary = primary
	a.mu.Unlock()

	inv.Environment["awsRegion"] = cfg.Region
	inv.Diag.SetEnv(bwdiag.Fields{"awsRegion": cfg.Region})
	return next(ctx)
}

// Start implements bwfunc.StartPlugin.
func (a *AWS) Start(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	a.mu.Lock()
	if a.cfg == nil {
		a.mu.Unlock()
		return errors.New("aws config not loaded, the env lifecycle did not run")
	}
	clients := make(map[string]any, len(a.factories))
	for _, f := range a.factories {
		cfg := a.cfg.Copy()
		if r := f.region.resolve(cfg.Region, a.primary); r != "" {
			cfg.Region = r
		}
		clients[f.key] = f.build(cfg)
	}
	a.clients = clients
	a.mu.Unlock()

	inv.Diag.Debug(bwdiag.Fields{bwdiag.FieldMsg: "aws clients created", "count": len(clients)})
	return next(ctx)
}

// Teardown implements bwfunc.TeardownPlugin.
func (a *AWS) Teardown(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	a.mu.Lock()
	a.clients = nil
	a.cfg = nil
	a.mu.Unlock()
	return next(ctx)
}

// clientKey returns a unique key for a client type and region selection.
func clientKey[T any](r region) string {
	t := reflect.TypeFor[T]()
	key := t.PkgPath() + "." + t.Name()
	switch {
	case r.fixed != "":
		key += "@" + r.fixed
	case r.primary:
		key += "@primary"
	}
	return key
}
