package bwdiag

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Fields is a set of diagnostic key/value pairs.
type Fields map[string]any

// Standard field names set on every record.
const (
	FieldTime      = "time"
	FieldLevel     = "level"
	FieldLevelName = "level_name"
	FieldMsg       = "msg"
	FieldErr       = "err"
)

// Record is one fully merged diagnostic line as handed to a Sink.
type Record map[string]any

// Msg returns the msg field or an empty string.
func (r Record) Msg() string {
	s, _ := r[FieldMsg].(string)
	return s
}

// Level returns the numeric level of the record.
func (r Record) Level() Level {
	l, _ := r[FieldLevel].(Level)
	return l
}

// Time returns the time the record was emitted.
func (r Record) Time() time.Time {
	t, _ := r[FieldTime].(time.Time)
	return t
}

// Context is a level-gated diagnostic emitter with environment and scope
// field sets. The zero value is not usable, construct it with New.
type Context struct {
	mu    sync.Mutex
	level Level
	env   Fields
	scope Fields
	sink  Sink
	now   func() time.Time
}

// Option configures a Context.
type Option func(*Context)

// WithLevel sets the emission threshold. Defaults to LevelInfo.
func WithLevel(l Level) Option {
	return func(c *Context) { c.level = l }
}

// WithSink sets the sink records are written to. Defaults to a ZapSink on stdout.
func WithSink(s Sink) Option {
	return func(c *Context) { c.sink = s }
}

// WithClock overrides the time source of the standard time field.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// New creates a Context.
func New(opts ...Option) *Context {
	c := &Context{
		level: LevelInfo,
		env:   Fields{},
		scope: Fields{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = NewZapSink(nil, false)
	}
	return c
}

// Fork returns a new Context that starts with copies of both field sets and
// shares the sink, level and clock of c. Changes to the fork do not affect c.
func (c *Context) Fork() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Context{
		level: c.level,
		env:   maps.Clone(c.env),
		scope: maps.Clone(c.scope),
		sink:  c.sink,
		now:   c.now,
	}
}

// Level returns the current threshold.
func (c *Context) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// SetLevel changes the threshold at runtime.
func (c *Context) SetLevel(l Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = l
}

// Enabled reports whether a record at level l would be emitted.
func (c *Context) Enabled(l Level) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level != LevelOff && l >= c.level
}

type scopeOptions struct {
	replace bool
}

// ScopeOption changes how SetEnv and SetScope apply their fields.
type ScopeOption func(*scopeOptions)

// Replace replaces the field set wholesale instead of merging into it.
func Replace() ScopeOption {
	return func(o *scopeOptions) { o.replace = true }
}

// Env returns a copy of the environment fields.
func (c *Context) Env() Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.env)
}

// SetEnv merges fields into the environment set, or replaces it with the
// Replace option. A nil fields value leaves the set untouched. It returns a
// copy of the resulting set.
func (c *Context) SetEnv(fields Fields, opts ...ScopeOption) Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.env = apply(c.env, fields, opts)
	return maps.Clone(c.env)
}

// ClearEnv empties the environment set.
func (c *Context) ClearEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.env = Fields{}
}

// Scope returns a copy of the current-scope fields.
func (c *Context) Scope() Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.scope)
}

// SetScope merges fields into the current-scope set, or replaces it with the
// Replace option. A nil fields value leaves the set untouched. It returns a
// copy of the resulting set.
func (c *Context) SetScope(fields Fields, opts ...ScopeOption) Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope = apply(c.scope, fields, opts)
	return maps.Clone(c.scope)
}

// ClearScope empties the current-scope set.
func (c *Context) ClearScope() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope = Fields{}
}

func apply(dst, fields Fields, opts []ScopeOption) Fields {
	if fields == nil {
		return dst
	}
	var o scopeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.replace {
		return maps.Clone(fields)
	}
	maps.Copy(dst, fields)
	return dst
}

// Trace emits v at LevelTrace. See Log.
func (c *Context) Trace(v any) Record { return c.Log(LevelTrace, v) }

// Debug emits v at LevelDebug. See Log.
func (c *Context) Debug(v any) Record { return c.Log(LevelDebug, v) }

// Info emits v at LevelInfo. See Log.
func (c *Context) Info(v any) Record { return c.Log(LevelInfo, v) }

// Warn emits v at LevelWarn. See Log.
func (c *Context) Warn(v any) Record { return c.Log(LevelWarn, v) }

// Error emits v at LevelError. See Log.
func (c *Context) Error(v any) Record { return c.Log(LevelError, v) }

// Fatal emits v at LevelFatal. It does not terminate the process. See Log.
func (c *Context) Fatal(v any) Record { return c.Log(LevelFatal, v) }

// Log merges v with the environment, scope and standard fields and writes
// the result to the sink. It returns a copy of the record, or nil when lvl
// is below the threshold.
//
// A string payload becomes the msg field, Fields or map payloads are merged
// without being mutated and an error becomes msg plus err (the "%+v"
// rendering, which includes a stack trace for cockroachdb errors).
func (c *Context) Log(lvl Level, v any) Record {
	c.mu.Lock()
	if c.level == LevelOff || lvl < c.level {
		c.mu.Unlock()
		return nil
	}
	rec := make(Record, len(c.env)+len(c.scope)+4)
	for k, val := range c.env {
		rec[k] = val
	}
	for k, val := range c.scope {
		rec[k] = val
	}
	rec[FieldTime] = c.now()
	rec[FieldLevel] = lvl
	rec[FieldLevelName] = lvl.String()
	sink := c.sink
	c.mu.Unlock()

	switch p := v.(type) {
	case nil:
	case string:
		rec[FieldMsg] = p
	case error:
		rec[FieldMsg] = p.Error()
		rec[FieldErr] = fmt.Sprintf("%+v", p)
	case Fields:
		for k, val := range p {
			rec[k] = val
		}
	case map[string]any:
		for k, val := range p {
			rec[k] = val
		}
	default:
		rec[FieldMsg] = fmt.Sprint(p)
	}

	// a broken sink must never fail the caller
	_ = sink.Write(rec)
	return maps.Clone(rec)
}
