package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/cockroachdb/errors"
)

type InvokeCmd struct {
	Event     string        `short:"e" type:"path" help:"Event file (.json, .yaml, .yml or .toml). Defaults to an empty object."`
	Times     int           `short:"n" default:"1" help:"Number of invocations."`
	Interval  time.Duration `help:"Pause between invocations."`
	ForceCold bool          `name:"force-cold" help:"Force a cold start on every invocation."`
	Expiry    time.Duration `help:"Instance expiry, overrides FUNC_EXPIRY."`
	Mode      string        `help:"Environment mode (development or production), overrides FUNC_ENV."`
	LogLevel  string        `name:"log-level" help:"Log level, overrides LOG_LEVEL."`
	Teardown  bool          `default:"true" negatable:"" help:"Run teardown after the last invocation."`
}

func (c *InvokeCmd) Run(cfg bwfunc.Config) error {
	return c.run(context.Background(), cfg, os.Stdout, os.Stderr)
}

func (c *InvokeCmd) run(ctx context.Context, cfg bwfunc.Config, stdout, stderr io.Writer) error {
	if c.Times < 1 {
		return errors.Newf("--times must be at least 1, got %d", c.Times)
	}
	if c.Expiry > 0 {
		cfg.Expiry = c.Expiry
	}
	switch c.Mode {
	case "":
	case bwfunc.ModeDevelopment, bwfunc.ModeProduction:
		cfg.Mode = c.Mode
	default:
		return errors.Newf("--mode must be %q or %q, got %q", bwfunc.ModeDevelopment, bwfunc.ModeProduction, c.Mode)
	}
	if c.LogLevel != "" {
		lvl, err := bwdiag.ParseLevel(c.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}

	event, err := loadEvent(c.Event)
	if err != nil {
		return err
	}

	tp, shutdown, err := bwfunc.NewTracerProviderFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	f := bwfunc.New(append(cfg.Options(),
		bwfunc.WithSink(bwdiag.NewZapSink(stderr, cfg.LogPretty)),
		bwfunc.WithTracerProvider(tp),
		bwfunc.WithPropagator(bwfunc.NewPropagator(cfg)),
	)...)
	if err := registerDemo(f); err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	for i := range c.Times {
		if i > 0 && c.Interval > 0 {
			time.Sleep(c.Interval)
		}

		var opts []bwfunc.InvokeOption
		if c.ForceCold {
			opts = append(opts, bwfunc.WithForceColdStart())
		}
		resp := f.Invoke(ctx, &bwfunc.Invocation{Event: event}, opts...)
		if err := enc.Encode(resp); err != nil {
			return errors.Wrap(err, "failed to write response")
		}
	}

	if c.Teardown {
		f.InvokeTeardown(ctx)
	}
	return nil
}
