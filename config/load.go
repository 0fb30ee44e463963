package config

import (
	"context"
	"io/fs"

	gconfig "github.com/goliatone/go-config/config"
)

const (
	// EnvPrefix scopes environment overrides, AUTH_LOCKOUT__THRESHOLD maps to lockout.threshold
	EnvPrefix = "AUTH_"
	EnvDelim  = "__"

	DefaultPath = "config/app.json"
)

// Load builds the configuration from Defaults, the optional JSON file at
// path and AUTH_ prefixed environment variables, in that order, and
// validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	container, err := gconfig.New(Defaults(),
		gconfig.WithLoader(
			gconfig.OptionalProvider(gconfig.FileProvider[*Config](path), gconfig.DefaultErrorFilter(fs.ErrNotExist)),
			gconfig.EnvProvider[*Config](EnvPrefix, EnvDelim, gconfig.DefaultOrderFlag),
		),
	)
	if err != nil {
		return nil, err
	}

	if err := container.Load(ctx); err != nil {
		return nil, err
	}

	return container.Raw(), nil
}
