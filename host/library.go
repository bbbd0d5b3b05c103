package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reglet-dev/dylib-host/domain/entities"
	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/internal/abi"
)

// Library is a loaded module. It is safe for concurrent use; Unload waits for
// in-flight exchanges to return.
type Library struct {
	mu     sync.RWMutex
	module ports.Module // nil once unloaded

	path     string
	format   entities.Format
	revision entities.Revision
	env      map[string]string

	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	borrowMu sync.Mutex
	borrowed map[*ForeignBuffer]struct{}
}

// Path returns the path the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// Format returns the module format.
func (l *Library) Format() entities.Format {
	return l.format
}

// Revision returns the negotiated exchange_inplace revision.
func (l *Library) Revision() entities.Revision {
	return l.revision
}

// Loaded reports whether the library has not been unloaded yet.
func (l *Library) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.module != nil
}

// ExchangeInPlace lets the library write into buf and returns the number of
// bytes written. Zero means the library did not write, usually because buf is
// too small.
func (l *Library) ExchangeInPlace(ctx context.Context, buf []byte, opts ...ExchangeOption) (int, error) {
	res, err := l.Exchange(ctx, buf, opts...)
	if err != nil {
		return 0, err
	}
	return res.Written, nil
}

// Exchange performs an in-place exchange and reports the details of the call.
func (l *Library) Exchange(ctx context.Context, buf []byte, opts ...ExchangeOption) (entities.ExchangeResult, error) {
	cfg := newExchangeConfig(len(buf), opts)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.module == nil {
		return entities.ExchangeResult{}, &derrors.NotLoadedError{}
	}

	if cfg.used < 0 || cfg.used > len(buf) {
		return entities.ExchangeResult{}, &derrors.InvalidArgumentError{
			Argument: "used size",
			Reason:   fmt.Sprintf("%d is outside the buffer capacity %d", cfg.used, len(buf)),
		}
	}

	ctx, span := l.tracer.Start(ctx, "host.Exchange")
	defer span.End()
	span.SetAttributes(
		attribute.String("dylib.path", l.path),
		attribute.Int("dylib.capacity", len(buf)),
		attribute.Int("dylib.used", cfg.used),
		attribute.Bool("dylib.query", !cfg.allowMutation),
	)

	written, err := l.callInPlace(ctx, buf, cfg)
	if err == nil && written > uint64(len(buf)) {
		err = &derrors.ContractViolationError{Symbol: abi.SymbolExchangeInPlace, Written: written, Capacity: len(buf)}
	}
	mode := exchangeModeInPlace
	if !cfg.allowMutation {
		mode = exchangeModeQuery
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.observeExchange(ctx, mode, 0, err)
		return entities.ExchangeResult{}, err
	}

	res := entities.ExchangeResult{
		Written:  int(written), //nolint:gosec // G115: bounded by len(buf)
		Capacity: len(buf),
		UsedSize: cfg.used,
		Query:    !cfg.allowMutation,
		Revision: l.revision,
	}
	span.SetAttributes(attribute.Int("dylib.written", res.Written))
	l.metrics.observeExchange(ctx, mode, res.Written, nil)
	if res.Written == 0 {
		l.logger.DebugContext(ctx, "host: library did not write, buffer may be too small", "path", l.path, "capacity", len(buf))
	}
	return res, nil
}

// callInPlace runs query mode on a scratch copy when the revision cannot
// pass the mutation flag.
func (l *Library) callInPlace(ctx context.Context, buf []byte, cfg exchangeConfig) (uint64, error) {
	if cfg.allowMutation || l.revision.SupportsMutationFlag() {
		return l.module.CallInPlace(ctx, l.revision, buf, cfg.used, cfg.allowMutation)
	}

	scratch := bytebufferpool.Get()
	defer bytebufferpool.Put(scratch)
	scratch.B = append(scratch.B[:0], buf...)

	return l.module.CallInPlace(ctx, l.revision, scratch.B, cfg.used, true)
}

// ExchangeByValue sends data to the legacy exchange symbol and returns a copy
// of the response. The library's allocation is released before returning.
func (l *Library) ExchangeByValue(ctx context.Context, data []byte) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fb, err := l.callByValue(ctx, data)
	if err != nil {
		return nil, err
	}

	out := fb.Bytes()
	if err := fb.release(ctx); err != nil {
		return nil, fmt.Errorf("failed to release response: %w", err)
	}
	return out, nil
}

// Borrow sends data to the legacy exchange symbol and returns the response
// without copying it. The caller must Release the buffer; Unload releases any
// buffer still outstanding.
func (l *Library) Borrow(ctx context.Context, data []byte) (*ForeignBuffer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fb, err := l.callByValue(ctx, data)
	if err != nil {
		return nil, err
	}
	fb.owner = l

	l.borrowMu.Lock()
	l.borrowed[fb] = struct{}{}
	l.borrowMu.Unlock()
	return fb, nil
}

// callByValue must be called with l.mu held for reading.
func (l *Library) callByValue(ctx context.Context, data []byte) (*ForeignBuffer, error) {
	if l.module == nil {
		return nil, &derrors.NotLoadedError{}
	}

	ctx, span := l.tracer.Start(ctx, "host.ExchangeByValue")
	defer span.End()
	span.SetAttributes(
		attribute.String("dylib.path", l.path),
		attribute.Int("dylib.input", len(data)),
	)

	fb, err := l.doCallByValue(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.observeExchange(ctx, exchangeModeByValue, 0, err)
		return nil, err
	}
	n := fb.Len()
	span.SetAttributes(attribute.Int("dylib.output", n))
	l.metrics.observeExchange(ctx, exchangeModeByValue, n, nil)
	return fb, nil
}

func (l *Library) doCallByValue(ctx context.Context, data []byte) (*ForeignBuffer, error) {
	alloc, err := l.module.CallByValue(ctx, data)
	if err != nil {
		return nil, err
	}
	if alloc.Data() == nil {
		return nil, &derrors.NullResultError{Symbol: abi.SymbolExchange}
	}
	return &ForeignBuffer{alloc: alloc}, nil
}

func (l *Library) releaseBorrowed(ctx context.Context, fb *ForeignBuffer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	l.borrowMu.Lock()
	delete(l.borrowed, fb)
	l.borrowMu.Unlock()

	return fb.release(ctx)
}

// Unload releases outstanding borrowed buffers, closes the module and clears
// the environment set at load. The handle is unusable afterwards even when
// closing fails.
func (l *Library) Unload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.module == nil {
		return &derrors.NotLoadedError{}
	}

	ctx, span := l.tracer.Start(ctx, "host.Unload")
	defer span.End()
	span.SetAttributes(attribute.String("dylib.path", l.path))

	l.borrowMu.Lock()
	for fb := range l.borrowed {
		if err := fb.release(ctx); err != nil {
			l.logger.WarnContext(ctx, "host: failed to release borrowed buffer", "path", l.path, "error", err)
		}
		delete(l.borrowed, fb)
	}
	l.borrowMu.Unlock()

	err := l.module.Close(ctx)
	l.module = nil
	unsetEnv(l.env)
	l.metrics.libraryUnloaded()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to unload %s: %w", l.path, err)
	}
	l.logger.InfoContext(ctx, "host: library unloaded", "path", l.path)
	return nil
}
