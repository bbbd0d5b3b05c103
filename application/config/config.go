// Package config loads and validates the host configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/reglet-dev/dylib-host/domain/entities"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/infrastructure/parser"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// loadConfig holds configuration for Load and Parse.
type loadConfig struct {
	parser ports.ConfigParser
}

// Option configures Load and Parse.
type Option func(*loadConfig)

// WithParser sets a custom config parser.
func WithParser(p ports.ConfigParser) Option {
	return func(c *loadConfig) {
		c.parser = p
	}
}

func defaultLoadConfig() loadConfig {
	return loadConfig{parser: parser.NewYamlConfigParser()}
}

// Load reads, parses and validates the configuration file at path.
func Load(path string, opts ...Option) (*entities.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, opts...)
}

// Parse parses data, applies defaults and validates the result.
func Parse(data []byte, opts ...Option) (*entities.Config, error) {
	lc := defaultLoadConfig()
	for _, opt := range opts {
		opt(&lc)
	}

	cfg, err := lc.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its validation tags.
func Validate(cfg *entities.Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
