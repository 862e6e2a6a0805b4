package bwdiag

import (
	"io"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink renders and writes merged records.
type Sink interface {
	Write(rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record) error

// Write calls f(rec).
func (f SinkFunc) Write(rec Record) error { return f(rec) }

// ZapSink writes records through a zapcore.Core. Level gating already
// happened in the Context, so the core's own level is bypassed.
type ZapSink struct {
	core   zapcore.Core
	pretty bool
}

// NewZapSink creates a sink that writes JSON lines to w, or a console
// layout when pretty is set. A nil w writes to stdout.
func NewZapSink(w io.Writer, pretty bool) *ZapSink {
	if w == nil {
		w = os.Stdout
	}

	var enc zapcore.Encoder
	if pretty {
		enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:          FieldTime,
			LevelKey:         FieldLevel,
			MessageKey:       FieldMsg,
			EncodeTime:       zapcore.ISO8601TimeEncoder,
			EncodeLevel:      encodeLevelName,
			EncodeDuration:   zapcore.MillisDurationEncoder,
			ConsoleSeparator: " ",
		})
	} else {
		enc = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey:     FieldMsg,
			EncodeTime:     zapcore.EpochMillisTimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		})
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zap.LevelEnablerFunc(func(zapcore.Level) bool {
		return true
	}))
	return &ZapSink{core: core, pretty: pretty}
}

// NewZapSinkFromCore wraps an existing core, for example one shared with the
// host application's zap logger.
func NewZapSinkFromCore(core zapcore.Core) *ZapSink {
	return &ZapSink{core: core}
}

// Write implements Sink.
func (s *ZapSink) Write(rec Record) error {
	ent := zapcore.Entry{
		Level:   ZapLevel(rec.Level()),
		Time:    rec.Time(),
		Message: rec.Msg(),
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k == FieldMsg {
			continue
		}
		if s.pretty && (k == FieldTime || k == FieldLevel || k == FieldLevelName) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if k == FieldLevel {
			fields = append(fields, zap.Int(k, int(rec.Level())))
			continue
		}
		fields = append(fields, zap.Any(k, rec[k]))
	}
	return s.core.Write(ent, fields)
}

// Core returns the underlying core.
func (s *ZapSink) Core() zapcore.Core {
	return s.core
}

// Sync flushes buffered output of the underlying core.
func (s *ZapSink) Sync() error {
	return s.core.Sync()
}

// ZapLevel maps a bwdiag level onto a zap level. Trace has no zap equivalent
// and maps one step below debug.
func ZapLevel(l Level) zapcore.Level {
	switch {
	case l <= LevelTrace:
		return zapcore.DebugLevel - 1
	case l <= LevelDebug:
		return zapcore.DebugLevel
	case l <= LevelInfo:
		return zapcore.InfoLevel
	case l <= LevelWarn:
		return zapcore.WarnLevel
	case l <= LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func encodeLevelName(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l < zapcore.DebugLevel {
		enc.AppendString("TRACE")
		return
	}
	enc.AppendString(l.CapitalString())
}

// MemorySink keeps every written record. It is safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements Sink.
func (s *MemorySink) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns the records written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Messages returns the msg field of every record written so far.
func (s *MemorySink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		msgs = append(msgs, rec.Msg())
	}
	return msgs
}

// Reset drops all records.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
