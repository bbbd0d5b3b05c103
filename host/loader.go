package host

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/reglet-dev/dylib-host/domain/entities"
	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/internal/abi"
)

// Loader opens modules and negotiates their exchange revision.
type Loader struct {
	config loaderConfig
}

// NewLoader creates a new Loader with defaults.
func NewLoader(opts ...LoaderOption) *Loader {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.finalize()
	return &Loader{config: cfg}
}

// Load opens the module at path and returns a handle to it.
// The format comes from WithFormat or, by default, the file extension.
func (l *Loader) Load(ctx context.Context, path string) (*Library, error) {
	format := l.format(path)

	ctx, span := l.config.tracer.Start(ctx, "host.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("dylib.path", path),
		attribute.String("dylib.format", string(format)),
	)

	lib, err := l.load(ctx, path, format)
	l.config.metrics.observeLoad(format, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.config.logger.WarnContext(ctx, "host: failed to load library", "path", path, "format", format, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("dylib.revision", int(lib.revision)))
	l.config.logger.InfoContext(ctx, "host: library loaded", "path", path, "format", format, "revision", lib.revision)
	return lib, nil
}

func (l *Loader) format(path string) entities.Format {
	if l.config.format != "" {
		return l.config.format
	}
	return entities.FormatFromPath(path)
}

func (l *Loader) load(ctx context.Context, path string, format entities.Format) (*Library, error) {
	opener, ok := l.config.openers[format]
	if !ok || opener == nil {
		return nil, &derrors.UnsupportedError{
			Feature: fmt.Sprintf("%s modules", format),
			Reason:  "no opener configured",
		}
	}

	if err := setEnv(l.config.env); err != nil {
		unsetEnv(l.config.env)
		return nil, err
	}

	mod, err := opener.Open(ctx, path)
	if err != nil {
		unsetEnv(l.config.env)
		return nil, err
	}

	rev, err := l.negotiate(ctx, mod)
	if err != nil {
		if cerr := mod.Close(ctx); cerr != nil {
			l.config.logger.WarnContext(ctx, "host: failed to close rejected module", "path", path, "error", cerr)
		}
		unsetEnv(l.config.env)
		return nil, err
	}

	l.config.metrics.libraryLoaded()
	return &Library{
		module:   mod,
		path:     path,
		format:   format,
		revision: rev,
		env:      l.config.env,
		metrics:  l.config.metrics,
		tracer:   l.config.tracer,
		logger:   l.config.logger,
		borrowed: make(map[*ForeignBuffer]struct{}),
	}, nil
}

// negotiate picks the exchange_inplace revision. An advertised revision wins
// unless it is unsupported or contradicts a pinned one.
func (l *Loader) negotiate(ctx context.Context, mod ports.Module) (entities.Revision, error) {
	pinned := l.config.revision

	advertised, ok, err := mod.AdvertisedRevision(ctx)
	if err != nil {
		return entities.RevisionUnknown, fmt.Errorf("failed to query %s: %w", abi.SymbolABIVersion, err)
	}

	if ok {
		if !advertised.Valid() || (pinned != entities.RevisionUnknown && pinned != advertised) {
			return entities.RevisionUnknown, &derrors.UnsupportedRevisionError{Advertised: advertised, Pinned: pinned}
		}
		return advertised, nil
	}

	if pinned == entities.RevisionUnknown {
		return entities.DefaultRevision, nil
	}
	if !pinned.Valid() {
		return entities.RevisionUnknown, &derrors.UnsupportedRevisionError{Pinned: pinned}
	}
	return pinned, nil
}

func setEnv(env map[string]string) error {
	for k, v := range env {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

func unsetEnv(env map[string]string) {
	for k := range env {
		_ = os.Unsetenv(k)
	}
}
