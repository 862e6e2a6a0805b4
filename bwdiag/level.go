package bwdiag

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Level is the numeric severity of a record. Higher is more severe.
type Level int

const (
	LevelTrace Level = 10
	LevelDebug Level = 20
	LevelInfo  Level = 30
	LevelWarn  Level = 40
	LevelError Level = 50
	LevelFatal Level = 60
	// LevelOff disables all emission when used as a threshold.
	LevelOff Level = 100
)

var levelNames = map[Level]string{
	LevelTrace: "trace",
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelFatal: "fatal",
	LevelOff:   "off",
}

// ParseLevel returns the level for one of trace, debug, info, warn, error,
// fatal or off. Matching is case-insensitive.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for lvl, n := range levelNames {
		if n == name {
			return lvl, nil
		}
	}
	return 0, errors.Newf("unknown log level: %q (supported: trace, debug, info, warn, error, fatal, off)", name)
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so a Level can be parsed
// directly from environment variables.
func (l *Level) UnmarshalText(text []byte) error {
	lvl, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}
