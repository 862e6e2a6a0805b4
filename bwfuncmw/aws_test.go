package bwfuncmw_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/basewarphq/bwfunc/bwfuncmw"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func setAWSEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv(bwfuncmw.PrimaryRegionEnv, "eu-central-1")
}

func TestAWS_RegionsFollowRegistration(t *testing.T) {
	setAWSEnv(t)

	var localRegion, primaryRegion, fixedRegion string
	a := bwfuncmw.NewAWS(bwfuncmw.WithTracing(sdktrace.NewTracerProvider(), propagation.TraceContext{}))
	bwfuncmw.RegisterClient(a, func(cfg aws.Config, opts ...func(*dynamodb.Options)) *dynamodb.Client {
		localRegion = cfg.Region
		return dynamodb.NewFromConfig(cfg, opts...)
	})
	bwfuncmw.RegisterClient(a, func(cfg aws.Config, opts ...func(*s3.Options)) *s3.Client {
		primaryRegion = cfg.Region
		return s3.NewFromConfig(cfg, opts...)
	}, bwfuncmw.ForPrimaryRegion())
	bwfuncmw.RegisterClient(a, func(cfg aws.Config, opts ...func(*sqs.Options)) *sqs.Client {
		fixedRegion = cfg.Region
		return sqs.NewFromConfig(cfg, opts...)
	}, bwfuncmw.ForRegion("ap-northeast-1"))

	f, _ := newFunc(t)
	must(t, f.Plugin(a))

	inv := &bwfunc.Invocation{}
	f.Invoke(context.Background(), inv)
	if inv.Error != nil {
		t.Fatalf("invoke error: %v", inv.Error)
	}

	if localRegion != "eu-west-1" {
		t.Errorf("local client region = %q, want %q", localRegion, "eu-west-1")
	}
	if primaryRegion != "eu-central-1" {
		t.Errorf("primary client region = %q, want %q", primaryRegion, "eu-central-1")
	}
	if fixedRegion != "ap-northeast-1" {
		t.Errorf("fixed client region = %q, want %q", fixedRegion, "ap-northeast-1")
	}
	if got := f.Environment()["awsRegion"]; got != "eu-west-1" {
		t.Errorf("awsRegion = %v", got)
	}

	t.Run("lookup", func(t *testing.T) {
		if _, err := bwfuncmw.Client[dynamodb.Client](a); err != nil {
			t.Errorf("local dynamodb client: %v", err)
		}
		if _, err := bwfuncmw.Client[s3.Client](a, bwfuncmw.ForPrimaryRegion()); err != nil {
			t.Errorf("primary s3 client: %v", err)
		}
		if _, err := bwfuncmw.Client[sqs.Client](a, bwfuncmw.ForRegion("ap-northeast-1")); err != nil {
			t.Errorf("fixed sqs client: %v", err)
		}
		if _, err := bwfuncmw.Client[sqs.Client](a); !errors.Is(err, bwfuncmw.ErrClientNotFound) {
			t.Errorf("expected ErrClientNotFound for an unregistered region, got %v", err)
		}
	})

	t.Run("teardown drops clients", func(t *testing.T) {
		f.InvokeTeardown(context.Background())
		if _, err := bwfuncmw.Client[dynamodb.Client](a); !errors.Is(err, bwfuncmw.ErrClientNotFound) {
			t.Errorf("expected ErrClientNotFound after teardown, got %v", err)
		}
		if _, ok := a.Config(); ok {
			t.Error("expected config to be dropped after teardown")
		}
	})
}

func TestAWS_ConfigLoaderError(t *testing.T) {
	a := bwfuncmw.NewAWS(bwfuncmw.WithConfigLoader(func(context.Context) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}))

	f, _ := newFunc(t)
	must(t, f.Plugin(a))

	inv := &bwfunc.Invocation{}
	f.Invoke(context.Background(), inv)
	if inv.Error == nil || inv.Error.Component != "AWS:Env" {
		t.Fatalf("expected env failure in AWS:Env, got %v", inv.Error)
	}
	if f.Started() {
		t.Error("expected instance not to start")
	}
}

func TestAWS_PrimaryRegionOption(t *testing.T) {
	var region string
	a := bwfuncmw.NewAWS(
		bwfuncmw.WithPrimaryRegion("us-west-2"),
		bwfuncmw.WithConfigLoader(func(context.Context) (aws.Config, error) {
			return aws.Config{Region: "eu-west-1"}, nil
		}),
	)
	bwfuncmw.RegisterClient(a, func(cfg aws.Config, opts ...func(*s3.Options)) *s3.Client {
		region = cfg.Region
		return s3.NewFromConfig(cfg, opts...)
	}, bwfuncmw.ForPrimaryRegion())

	f, _ := newFunc(t)
	must(t, f.Plugin(a))
	f.Invoke(context.Background(), &bwfunc.Invocation{})

	if region != "us-west-2" {
		t.Errorf("primary region = %q, want %q", region, "us-west-2")
	}
}
