package bwfunc_test

import (
	"context"
	"fmt"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/basewarphq/bwfunc/bwfunc"
)

// Example registers env and request middleware and invokes the function
// twice. Only the first invocation is a cold start.
func Example() {
	f := bwfunc.New(bwfunc.WithLogLevel(bwdiag.LevelOff))

	_ = f.Env(func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		inv.Environment["greeting"] = "hello"
		return next(ctx)
	})
	_ = f.Request(func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		inv.Response = fmt.Sprintf("%s %v (coldstart=%v)", inv.Environment["greeting"], inv.Event, inv.IsColdStart())
		return next(ctx)
	})

	ctx := context.Background()
	fmt.Println(f.Invoke(ctx, &bwfunc.Invocation{Event: "world"}))
	fmt.Println(f.Invoke(ctx, &bwfunc.Invocation{Event: "again"}))
	// Output:
	// hello world (coldstart=true)
	// hello again (coldstart=false)
}

// Connection is a plugin that takes part in the start and teardown lifecycles.
type Connection struct{ open bool }

func (c *Connection) Start(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	c.open = true
	fmt.Println("connection opened")
	return next(ctx)
}

func (c *Connection) Teardown(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
	c.open = false
	fmt.Println("connection closed")
	return next(ctx)
}

func ExampleFunc_Plugin() {
	f := bwfunc.New(bwfunc.WithLogLevel(bwdiag.LevelOff))
	_ = f.Plugin(&Connection{})

	ctx := context.Background()
	f.Invoke(ctx, &bwfunc.Invocation{})
	f.Invoke(ctx, &bwfunc.Invocation{}, bwfunc.WithForceColdStart())
	f.InvokeTeardown(ctx)
	// Output:
	// connection opened
	// connection closed
	// connection opened
	// connection closed
}

func ExampleCompose() {
	layer := func(name string) bwfunc.Middleware {
		return bwfunc.Named(name, func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
			fmt.Println("enter", name)
			err := next(ctx)
			fmt.Println("leave", name)
			return err
		})
	}

	composed, _ := bwfunc.Compose([]bwfunc.Middleware{layer("outer"), layer("inner")})
	_ = composed(context.Background(), &bwfunc.Invocation{}, nil)
	// Output:
	// enter outer
	// enter inner
	// leave inner
	// leave outer
}
