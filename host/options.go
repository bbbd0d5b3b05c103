package host

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/reglet-dev/dylib-host/domain/entities"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/infrastructure/native"
	"github.com/reglet-dev/dylib-host/infrastructure/wazero"
)

const tracerName = "github.com/reglet-dev/dylib-host/host"

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	openers  map[entities.Format]ports.Opener
	format   entities.Format   // forced format, empty to guess from the extension
	revision entities.Revision // pinned revision, RevisionUnknown when not pinned
	env      map[string]string
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		openers: map[entities.Format]ports.Opener{
			entities.FormatNative: native.NewOpener(),
			entities.FormatWasm:   wazero.NewOpener(),
		},
		env: make(map[string]string),
	}
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithOpener sets the opener used for a module format.
func WithOpener(format entities.Format, o ports.Opener) LoaderOption {
	return func(c *loaderConfig) {
		c.openers[format] = o
	}
}

// WithFormat forces the module format instead of guessing from the file extension.
func WithFormat(format entities.Format) LoaderOption {
	return func(c *loaderConfig) {
		c.format = format
	}
}

// WithRevision pins the exchange_inplace revision.
// Loading fails if the module advertises a different one.
func WithRevision(rev entities.Revision) LoaderOption {
	return func(c *loaderConfig) {
		c.revision = rev
	}
}

// WithEnv sets an environment variable while a library is loaded.
// The variable is set before the module is opened and unset on unload.
// The environment is process-wide: the first unload of a library that set a
// key clears it for every other library.
func WithEnv(key, value string) LoaderOption {
	return func(c *loaderConfig) {
		c.env[key] = value
	}
}

// WithProtobufCppCompat selects the C++ protobuf implementation for libraries
// that embed a protobuf runtime.
func WithProtobufCppCompat() LoaderOption {
	return WithEnv(entities.ProtobufImplementationEnv, "cpp")
}

// WithMetrics records load and exchange metrics.
func WithMetrics(m *Metrics) LoaderOption {
	return func(c *loaderConfig) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for spans. Defaults to the global provider.
func WithTracer(t trace.Tracer) LoaderOption {
	return func(c *loaderConfig) {
		c.tracer = t
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) LoaderOption {
	return func(c *loaderConfig) {
		c.logger = l
	}
}

// WithConfig applies the format, revision and environment of a file configuration.
func WithConfig(cfg entities.Config) LoaderOption {
	return func(c *loaderConfig) {
		if cfg.Format != "" {
			c.format = cfg.Format
		}
		if cfg.Revision != entities.RevisionUnknown {
			c.revision = cfg.Revision
		}
		for k, v := range cfg.Env {
			c.env[k] = v
		}
	}
}

func (c *loaderConfig) finalize() {
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
}
