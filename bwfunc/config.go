package bwfunc

import (
	"time"

	"github.com/basewarphq/bwfunc/bwdiag"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Config holds the settings of a Func that are read from the environment.
//
//	| Variable      | Default     | Description                                        |
//	|---------------|-------------|----------------------------------------------------|
//	| LOG_LEVEL     | info        | trace, debug, info, warn, error, fatal or off      |
//	| LOG_PRETTY    | false       | console layout instead of JSON lines               |
//	| FUNC_ENV      | development | "production" hides error details from the caller   |
//	| FUNC_EXPIRY   | 0s          | instance expiry, 0s never expires                  |
//	| SERVICE_NAME  | bwfunc      | service name for tracing                           |
//	| OTEL_EXPORTER | none        | trace exporter: "none", "stdout" or "xrayudp"      |
type Config struct {
	LogLevel     bwdiag.Level  `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty    bool          `env:"LOG_PRETTY" envDefault:"false"`
	Mode         string        `env:"FUNC_ENV" envDefault:"development" validate:"required"`
	Expiry       time.Duration `env:"FUNC_EXPIRY" envDefault:"0s" validate:"gte=0"`
	ServiceName  string        `env:"SERVICE_NAME" envDefault:"bwfunc" validate:"required"`
	OtelExporter string        `env:"OTEL_EXPORTER" envDefault:"none" validate:"oneof=none stdout xrayudp"`
}

// ParseConfig parses and validates Config from the process environment.
func ParseConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// ParseConfigFrom parses and validates Config from the given variables
// instead of the process environment.
func ParseConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environ})
}

func parseConfig(opts env.Options) (cfg Config, err error) {
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, errors.Wrap(err, "failed to parse environment")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Options converts the configuration into Func options.
func (c Config) Options() []Option {
	return []Option{
		WithLogLevel(c.LogLevel),
		WithPrettyLogs(c.LogPretty),
		WithMode(c.Mode),
		WithExpiry(c.Expiry),
	}
}

// NewFromEnv creates a Func configured from the process environment. opts
// are applied after the environment configuration.
func NewFromEnv(opts ...Option) (*Func, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return nil, err
	}
	return New(append(cfg.Options(), opts...)...), nil
}
