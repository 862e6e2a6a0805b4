package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/basewarphq/bwfunc/bwfuncmw"
	"github.com/cockroachdb/errors"
)

// greeting is the event understood by the demo function.
type greeting struct {
	Name string `json:"name"`
	Fail bool   `json:"fail"`
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string   { return e.msg }
func (e *badRequestError) StatusCode() int { return http.StatusBadRequest }

// greeter is the demo plugin. It counts invocations per instance so cold
// starts are visible in the output.
type greeter struct {
	invocations int
}

func (g *greeter) Start(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	g.invocations = 0
	inv.Diag.Info("greeter started")
	return next(ctx)
}

func (g *greeter) Request(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	var ev greeting
	if raw, ok := inv.Event.(json.RawMessage); ok {
		if err := json.Unmarshal(raw, &ev); err != nil {
			return errors.Wrap(err, "failed to decode event")
		}
	}
	if ev.Fail {
		return errors.WithStack(&badRequestError{msg: "the event asked to fail"})
	}
	if ev.Name == "" {
		ev.Name = "world"
	}

	g.invocations++
	greetingText, _ := inv.Environment["greeting"].(string)
	if greetingText == "" {
		greetingText = "hello"
	}
	inv.Response = map[string]any{
		"message":     greetingText + " " + ev.Name,
		"coldstart":   inv.IsColdStart(),
		"invocations": g.invocations,
	}
	inv.Diag.Debug(bwdiag.Fields{bwdiag.FieldMsg: "greeted", "name": ev.Name})
	return next(ctx)
}

func (g *greeter) Teardown(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	inv.Diag.Info(bwdiag.Fields{bwdiag.FieldMsg: "greeter stopped", "invocations": g.invocations})
	return next(ctx)
}

// registerDemo registers the demo function: environment variables prefixed
// with BWFUNC_ become instance environment, every request is answered with a
// JSON API Gateway response and errors are turned into error responses.
func registerDemo(f *bwfunc.Func) error {
	if err := f.Env(
		bwfuncmw.ProcessEnv(bwfuncmw.WithPrefix("BWFUNC_"), bwfuncmw.WithLowerCamel()),
		bwfuncmw.StageVariables(bwfuncmw.WithLowerCamel()),
	); err != nil {
		return err
	}
	if err := f.Plugin(bwfuncmw.LambdaFields{}); err != nil {
		return err
	}
	if err := f.Request(bwfuncmw.TraceFields(), bwfuncmw.JSONResponse()); err != nil {
		return err
	}
	if err := f.Plugin(&greeter{}); err != nil {
		return err
	}
	return f.Error(bwfuncmw.ErrorResponse())
}
