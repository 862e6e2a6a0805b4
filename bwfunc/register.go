package bwfunc

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
)

// EnvPlugin is implemented by plugins that take part in the env lifecycle.
type EnvPlugin interface {
	Env(ctx context.Context, inv *Invocation, next Next) error
}

// StartPlugin is implemented by plugins that take part in the start lifecycle.
type StartPlugin interface {
	Start(ctx context.Context, inv *Invocation, next Next) error
}

// RequestPlugin is implemented by plugins that take part in the request lifecycle.
type RequestPlugin interface {
	Request(ctx context.Context, inv *Invocation, next Next) error
}

// ErrorPlugin is implemented by plugins that take part in the error lifecycle.
type ErrorPlugin interface {
	Error(ctx context.Context, inv *Invocation, next Next) error
}

// TeardownPlugin is implemented by plugins that take part in the teardown lifecycle.
type TeardownPlugin interface {
	Teardown(ctx context.Context, inv *Invocation, next Next) error
}

// IsPlugin reports whether v implements at least one lifecycle method.
func IsPlugin(v any) bool {
	return len(pluginMiddleware(v)) > 0
}

// Env registers middleware for the env lifecycle. See Use.
func (f *Func) Env(items ...any) error { return f.Use(LifecycleEnv, items...) }

// Start registers middleware for the start lifecycle. See Use.
func (f *Func) Start(items ...any) error { return f.Use(LifecycleStart, items...) }

// Request registers middleware for the request lifecycle. See Use.
func (f *Func) Request(items ...any) error { return f.Use(LifecycleRequest, items...) }

// Error registers middleware for the error lifecycle. See Use.
func (f *Func) Error(items ...any) error { return f.Use(LifecycleError, items...) }

// Teardown registers middleware for the teardown lifecycle. See Use.
func (f *Func) Teardown(items ...any) error { return f.Use(LifecycleTeardown, items...) }

// Plugin registers every lifecycle method implemented by p. Each method is
// tagged with the plugin's type name, e.g. "Cache:Start".
func (f *Func) Plugin(p any) error {
	bound := pluginMiddleware(p)
	if len(bound) == 0 {
		return errors.Wrapf(ErrInvalidMiddleware, "%T implements none of Env, Start, Request, Error, Teardown", p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range bound {
		f.middleware[b.lifecycle] = append(f.middleware[b.lifecycle], b.mw)
	}
	return nil
}

// Use appends items to the registry of lifecycle lc in order. An item can be
// a HandlerFunc (or any function type with the same signature), a
// Middleware, a plugin or a slice or array of any of these, which is
// flattened recursively.
//
// Plugins are always registered for every lifecycle they implement,
// regardless of lc. Registration is all or nothing: when any item is
// invalid nothing is registered and ErrInvalidMiddleware is returned.
func (f *Func) Use(lc Lifecycle, items ...any) error {
	if !lc.Valid() {
		return errors.Wrapf(ErrInvalidLifecycle, "%q", lc)
	}

	var pending []boundMiddleware
	for _, item := range items {
		bound, err := flatten(lc, item)
		if err != nil {
			return err
		}
		pending = append(pending, bound...)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range pending {
		f.middleware[b.lifecycle] = append(f.middleware[b.lifecycle], b.mw)
	}
	return nil
}

type boundMiddleware struct {
	lifecycle Lifecycle
	mw        Middleware
}

func flatten(lc Lifecycle, item any) ([]boundMiddleware, error) {
	switch v := item.(type) {
	case nil:
		return nil, errors.Wrap(ErrInvalidMiddleware, "nil middleware")
	case Middleware:
		if v.Fn == nil {
			return nil, errors.Wrapf(ErrInvalidMiddleware, "middleware %q has no function", v.Name)
		}
		return []boundMiddleware{{lc, v}}, nil
	case HandlerFunc:
		if v == nil {
			return nil, errors.Wrap(ErrInvalidMiddleware, "nil handler function")
		}
		return []boundMiddleware{{lc, Wrap(v)}}, nil
	case func(context.Context, *Invocation, Next) error:
		if v == nil {
			return nil, errors.Wrap(ErrInvalidMiddleware, "nil handler function")
		}
		return []boundMiddleware{{lc, Wrap(v)}}, nil
	}

	if bound := pluginMiddleware(item); len(bound) > 0 {
		return bound, nil
	}

	rv := reflect.ValueOf(item)
	switch rv.Kind() {
	case reflect.Func:
		if !rv.Type().ConvertibleTo(handlerFuncType) {
			break
		}
		if rv.IsNil() {
			return nil, errors.Wrap(ErrInvalidMiddleware, "nil handler function")
		}
		return []boundMiddleware{{lc, Wrap(rv.Convert(handlerFuncType).Interface().(HandlerFunc))}}, nil
	case reflect.Slice, reflect.Array:
		var out []boundMiddleware
		for i := range rv.Len() {
			bound, err := flatten(lc, rv.Index(i).Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			out = append(out, bound...)
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrInvalidMiddleware, "unsupported middleware type %T", item)
}

var handlerFuncType = reflect.TypeFor[HandlerFunc]()

// pluginMiddleware binds every lifecycle method implemented by p.
func pluginMiddleware(p any) []boundMiddleware {
	if p == nil {
		return nil
	}
	owner := typeName(p)

	var bound []boundMiddleware
	add := func(lc Lifecycle, method string, fn HandlerFunc) {
		bound = append(bound, boundMiddleware{lc, Middleware{Name: componentName(owner, method), Fn: fn}})
	}
	if pl, ok := p.(EnvPlugin); ok {
		add(LifecycleEnv, "Env", pl.Env)
	}
	if pl, ok := p.(StartPlugin); ok {
		add(LifecycleStart, "Start", pl.Start)
	}
	if pl, ok := p.(RequestPlugin); ok {
		add(LifecycleRequest, "Request", pl.Request)
	}
	if pl, ok := p.(ErrorPlugin); ok {
		add(LifecycleError, "Error", pl.Error)
	}
	if pl, ok := p.(TeardownPlugin); ok {
		add(LifecycleTeardown, "Teardown", pl.Teardown)
	}
	return bound
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
