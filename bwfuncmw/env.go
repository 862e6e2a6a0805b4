package bwfuncmw

import (
	"context"
	"os"
	"strings"

	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
)

type envOptions struct {
	prefix     string
	lowerCamel bool
	environ    func() []string
}

// EnvOption configures ProcessEnv.
type EnvOption func(*envOptions)

// WithPrefix only imports variables starting with prefix and strips it from
// the key.
func WithPrefix(prefix string) EnvOption {
	return func(o *envOptions) { o.prefix = prefix }
}

// WithLowerCamel converts keys to lowerCamel, e.g. TABLE_NAME to tableName.
func WithLowerCamel() EnvOption {
	return func(o *envOptions) { o.lowerCamel = true }
}

// WithEnviron reads variables from environ instead of os.Environ.
func WithEnviron(environ func() []string) EnvOption {
	return func(o *envOptions) { o.environ = environ }
}

// ProcessEnv returns env middleware that copies process environment variables
// into Invocation.Environment. Keys already present are not overwritten.
func ProcessEnv(opts ...EnvOption) bwfunc.Middleware {
	o := envOptions{environ: os.Environ}
	for _, opt := range opts {
		opt(&o)
	}

	return bwfunc.Named("ProcessEnv:Env", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		for _, kv := range o.environ() {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || !strings.HasPrefix(key, o.prefix) {
				continue
			}
			key = strings.TrimPrefix(key, o.prefix)
			if key == "" {
				continue
			}
			if o.lowerCamel {
				key = strcase.ToLowerCamel(strings.ToLower(key))
			}
			if _, exists := inv.Environment[key]; !exists {
				inv.Environment[key] = value
			}
		}
		return next(ctx)
	})
}

// ParseEnv returns env middleware that parses the process environment into
// E using caarlos0/env struct tags, validates it and stores it in
// Invocation.Environment under key. Retrieve it with EnvValue.
//
//	type Env struct {
//	    TableName string `env:"TABLE_NAME,required"`
//	}
//
//	f.Env(bwfuncmw.ParseEnv[Env]("config"))
func ParseEnv[E any](key string) bwfunc.Middleware {
	return bwfunc.Named("ParseEnv:Env", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		var e E
		if err := env.Parse(&e); err != nil {
			return errors.Wrap(err, "failed to parse environment")
		}
		if err := validator.New(validator.WithRequiredStructEnabled()).Struct(e); err != nil {
			return errors.Wrap(err, "invalid environment")
		}
		inv.Environment[key] = e
		return next(ctx)
	})
}

// EnvValue returns the value stored under key by ParseEnv.
func EnvValue[E any](inv *bwfunc.Invocation, key string) (E, bool) {
	e, ok := inv.Environment[key].(E)
	return e, ok
}
