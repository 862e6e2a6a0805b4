// Package bwdiag provides the per-invocation diagnostic context used by bwfunc.
//
// A [Context] carries two independent field sets that are merged into every
// record it emits:
//
//   - environment fields describe the instance and persist for its lifetime
//     (function name, version, region, ...)
//   - scope fields describe what is executing right now (lifecycle phase and
//     the middleware component that is currently active)
//
// Every emitted [Record] is built by merging, in order of increasing
// precedence, the environment fields, the scope fields, the standard fields
// (time, level, level_name) and finally the payload of the call:
//
//	diag := bwdiag.New(bwdiag.WithLevel(bwdiag.LevelDebug))
//	diag.SetEnv(bwdiag.Fields{"functionName": "orders"})
//	diag.SetScope(bwdiag.Fields{"lifecycle": "request"})
//	diag.Info("processing order")
//
// Emission is level gated. Calls below the configured threshold return nil
// and never reach the [Sink]. The threshold can be changed at runtime with
// [Context.SetLevel], including to [LevelOff].
//
// # Sinks
//
// Rendering is delegated to a [Sink]. [ZapSink] writes records through a
// zapcore.Core as JSON lines (or a console layout for local development) and
// [MemorySink] keeps records in memory for tests.
package bwdiag
