package bwfunc_test

import (
	"context"
	"strings"
	"testing"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/cockroachdb/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recorder returns a middleware named name that appends to log around its
// downstream call.
func recorder(name string, log *[]string) bwfunc.Middleware {
	return bwfunc.Named(name, func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		*log = append(*log, name+">")
		if err := next(ctx); err != nil {
			return err
		}
		*log = append(*log, "<"+name)
		return nil
	})
}

func newTestInvocation() (*bwfunc.Invocation, *bwdiag.MemorySink) {
	sink := bwdiag.NewMemorySink()
	return &bwfunc.Invocation{
		Diag: bwdiag.New(bwdiag.WithLevel(bwdiag.LevelTrace), bwdiag.WithSink(sink)),
	}, sink
}

func TestCompose_OnionOrder(t *testing.T) {
	var log []string
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		recorder("a", &log),
		recorder("b", &log),
		recorder("c", &log),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	want := "a> b> c> <c <b <a"
	if got := strings.Join(log, " "); got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
	if len(inv.Stack) != 0 {
		t.Errorf("expected empty stack after success, got %d frames", len(inv.Stack))
	}
}

func TestCompose_Terminal(t *testing.T) {
	var log []string
	composed, err := bwfunc.Compose([]bwfunc.Middleware{recorder("a", &log)})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	err = composed(context.Background(), inv, func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		log = append(log, "terminal")
		return next(ctx)
	})
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	if got := strings.Join(log, " "); got != "a> terminal <a" {
		t.Errorf("order = %q", got)
	}
}

func TestCompose_EmptyChain(t *testing.T) {
	composed, err := bwfunc.Compose(nil)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if len(inv.Stack) != 0 {
		t.Errorf("expected empty stack, got %d frames", len(inv.Stack))
	}
}

func TestCompose_InvalidInput(t *testing.T) {
	_, err := bwfunc.Compose([]bwfunc.Middleware{{Name: "broken"}})
	if !errors.Is(err, bwfunc.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompose_DoubleNext(t *testing.T) {
	var calls int
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		bwfunc.Named("twice", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			if err := next(ctx); err != nil {
				return err
			}
			return next(ctx)
		}),
		bwfunc.Named("counter", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			calls++
			return next(ctx)
		}),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	err = composed(context.Background(), inv, nil)
	if !errors.Is(err, bwfunc.ErrDoubleNext) {
		t.Fatalf("expected ErrDoubleNext, got %v", err)
	}
	if !strings.Contains(err.Error(), "next() called multiple times") {
		t.Errorf("unexpected message: %s", err)
	}
	if calls != 1 {
		t.Errorf("downstream ran %d times, want 1", calls)
	}
	if top := inv.Top(); top == nil || top.Component != "twice" {
		t.Errorf("expected failing frame on top of the stack, got %+v", top)
	}
}

func TestCompose_ErrorKeepsFailingFrame(t *testing.T) {
	boom := errors.New("boom")
	var log []string
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		recorder("outer", &log),
		bwfunc.Named("failing", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			return boom
		}),
		recorder("never", &log),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	err = composed(context.Background(), inv, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if len(inv.Stack) != 2 {
		t.Fatalf("expected 2 frames on the stack, got %d", len(inv.Stack))
	}
	if inv.Top().Component != "failing" {
		t.Errorf("top frame = %q, want %q", inv.Top().Component, "failing")
	}
	if got := strings.Join(log, " "); got != "outer>" {
		t.Errorf("log = %q, want %q", got, "outer>")
	}
}

func TestCompose_HandledDownstreamError(t *testing.T) {
	var (
		depth     int
		component any
		handled   *bwfunc.Frame
	)
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		bwfunc.Named("fallback", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			if err := next(ctx); err != nil {
				depth = len(inv.Stack)
				component = inv.Diag.Scope()[bwfunc.ScopeComponent]
				handled = inv.Top()
				inv.Response = "fallback"
			}
			return nil
		}),
		bwfunc.Named("failing", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			return errors.New("boom")
		}),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	if depth != 1 {
		t.Errorf("stack depth while handling = %d, want 1", depth)
	}
	if component != "fallback" {
		t.Errorf("component while handling = %v, want %q", component, "fallback")
	}
	if handled == nil || handled.Component != "fallback" {
		t.Fatalf("top frame while handling = %+v", handled)
	}
	if handled.AfterNext.IsZero() {
		t.Error("expected AfterNext to be recorded after a failing downstream")
	}
	if handled.Execution() > handled.Duration()-handled.AfterNext.Sub(handled.BeforeNext) {
		t.Error("expected downstream time to be excluded from execution")
	}
	if len(inv.Stack) != 0 {
		t.Errorf("expected empty stack, got %d frames", len(inv.Stack))
	}
	if inv.Response != "fallback" {
		t.Errorf("response = %v", inv.Response)
	}
}

func TestCompose_TranslatedErrorNamesHandler(t *testing.T) {
	translated := errors.New("translated")
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		bwfunc.Named("translator", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			if err := next(ctx); err != nil {
				return translated
			}
			return nil
		}),
		bwfunc.Named("failing", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			return errors.New("boom")
		}),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); !errors.Is(err, translated) {
		t.Fatalf("expected translated error, got %v", err)
	}
	if len(inv.Stack) != 1 || inv.Top().Component != "translator" {
		t.Errorf("expected only the translator frame, got %d frames", len(inv.Stack))
	}
}

func TestCompose_WrappedErrorKeepsDownstreamFrames(t *testing.T) {
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		bwfunc.Named("wrapper", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			return errors.Wrap(next(ctx), "wrapped")
		}),
		bwfunc.Named("failing", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			return errors.New("boom")
		}),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err == nil {
		t.Fatal("expected an error")
	}
	if len(inv.Stack) != 2 || inv.Top().Component != "failing" {
		t.Errorf("expected the failing frame on top, got %d frames", len(inv.Stack))
	}
}

func TestCompose_Panic(t *testing.T) {
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		bwfunc.Named("panicky", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			panic("kaboom")
		}),
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	err = composed(context.Background(), inv, nil)
	if !errors.Is(err, bwfunc.ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if !strings.Contains(err.Error(), "panic in panicky: kaboom") {
		t.Errorf("unexpected message: %s", err)
	}
	if top := inv.Top(); top == nil || top.Component != "panicky" {
		t.Errorf("expected panicking frame on top of the stack, got %+v", top)
	}
}

func TestCompose_Frames(t *testing.T) {
	var frames []*bwfunc.Frame
	var log []string
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		recorder("a", &log),
		recorder("b", &log),
	}, bwfunc.WithFrameObserver(func(f *bwfunc.Frame) {
		frames = append(frames, f)
	}))
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	inner, outer := frames[0], frames[1]
	if inner.Component != "b" || inner.Index != 1 {
		t.Errorf("inner frame = %s/%d", inner.Component, inner.Index)
	}
	if outer.Component != "a" || outer.Index != 0 {
		t.Errorf("outer frame = %s/%d", outer.Component, outer.Index)
	}

	t.Run("timestamps are ordered", func(t *testing.T) {
		if outer.BeforeNext.After(inner.BeforeInvoke) {
			t.Error("outer.BeforeNext after inner.BeforeInvoke")
		}
		if inner.AfterInvoke.After(outer.AfterNext) {
			t.Error("inner.AfterInvoke after outer.AfterNext")
		}
		if outer.AfterNext.After(outer.AfterInvoke) {
			t.Error("outer.AfterNext after outer.AfterInvoke")
		}
	})

	t.Run("execution excludes downstream time", func(t *testing.T) {
		if outer.Execution() > outer.Duration() {
			t.Errorf("execution %v > duration %v", outer.Execution(), outer.Duration())
		}
		if outer.Duration() < inner.Duration() {
			t.Errorf("outer duration %v < inner duration %v", outer.Duration(), inner.Duration())
		}
	})
}

func TestCompose_ScopeFollowsActiveMiddleware(t *testing.T) {
	seen := map[string]string{}
	scoped := func(name string) bwfunc.Middleware {
		return bwfunc.Named(name, func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			seen[name+":before"] = inv.Diag.Scope()[bwfunc.ScopeComponent].(string)
			if err := next(ctx); err != nil {
				return err
			}
			seen[name+":after"] = inv.Diag.Scope()[bwfunc.ScopeComponent].(string)
			return nil
		})
	}

	composed, err := bwfunc.Compose([]bwfunc.Middleware{scoped("outer"), scoped("inner")})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	for key, want := range map[string]string{
		"outer:before": "outer",
		"outer:after":  "outer",
		"inner:before": "inner",
		"inner:after":  "inner",
	} {
		if seen[key] != want {
			t.Errorf("%s: component = %q, want %q", key, seen[key], want)
		}
	}
}

func TestCompose_TraceLines(t *testing.T) {
	var log []string
	composed, err := bwfunc.Compose([]bwfunc.Middleware{recorder("a", &log)})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, sink := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	recs := sink.Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(recs), sink.Messages())
	}
	if recs[0].Msg() != "BEGIN: a" {
		t.Errorf("first record = %q", recs[0].Msg())
	}
	end := recs[1]
	if end.Msg() != "END: a" {
		t.Errorf("second record = %q", end.Msg())
	}
	if _, ok := end["duration"]; !ok {
		t.Error("END record has no duration")
	}
	if _, ok := end["execution"]; !ok {
		t.Error("END record has no execution")
	}
	if end[bwfunc.ScopeComponent] != "a" {
		t.Errorf("END record component = %v", end[bwfunc.ScopeComponent])
	}
}

func TestCompose_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	var log []string
	composed, err := bwfunc.Compose([]bwfunc.Middleware{
		recorder("a", &log),
		recorder("b", &log),
	}, bwfunc.WithTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	inv, _ := newTestInvocation()
	if err := composed(context.Background(), inv, nil); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "b" || spans[1].Name() != "a" {
		t.Errorf("span names = %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected b to be a child span of a")
	}
}
