package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/internal/abi"
)

// DefaultMaxBufferSize limits the buffers copied into guest memory (16MB).
const DefaultMaxBufferSize = 16 * 1024 * 1024

// OpenerConfig holds configuration for the wasm Opener.
type OpenerConfig struct {
	// RuntimeConfig is used for every module runtime. Defaults to wazero.NewRuntimeConfig().
	RuntimeConfig wazero.RuntimeConfig

	// MaxBufferSize limits the buffers exchanged with the guest.
	MaxBufferSize uint32

	// WASI instantiates wasi_snapshot_preview1 so modules built for wasip1 can load.
	WASI bool
}

// OpenerOption configures the Opener.
type OpenerOption func(*OpenerConfig)

// WithRuntimeConfig sets the wazero runtime configuration.
func WithRuntimeConfig(rc wazero.RuntimeConfig) OpenerOption {
	return func(c *OpenerConfig) {
		c.RuntimeConfig = rc
	}
}

// WithMaxBufferSize sets the maximum buffer size exchanged with the guest.
func WithMaxBufferSize(size uint32) OpenerOption {
	return func(c *OpenerConfig) {
		c.MaxBufferSize = size
	}
}

// WithWASI enables or disables the WASI preview1 host module.
func WithWASI(enabled bool) OpenerOption {
	return func(c *OpenerConfig) {
		c.WASI = enabled
	}
}

func defaultOpenerConfig() OpenerConfig {
	return OpenerConfig{
		MaxBufferSize: DefaultMaxBufferSize,
		WASI:          true,
	}
}

// Opener opens .wasm files as exchange modules. Each module gets its own
// runtime so that closing it releases everything it compiled.
type Opener struct {
	config OpenerConfig
}

// NewOpener creates an Opener with the given options.
func NewOpener(opts ...OpenerOption) *Opener {
	cfg := defaultOpenerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RuntimeConfig == nil {
		cfg.RuntimeConfig = wazero.NewRuntimeConfig()
	}
	return &Opener{config: cfg}
}

// Open reads, compiles and instantiates the module at path.
func (o *Opener) Open(ctx context.Context, path string) (ports.Module, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, &derrors.LibraryOpenError{Path: path, Err: err}
	}
	return o.instantiate(ctx, path, wasmBytes)
}

func (o *Opener) instantiate(ctx context.Context, path string, wasmBytes []byte) (ports.Module, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, o.config.RuntimeConfig)

	fail := func(err error) (ports.Module, error) {
		if cerr := rt.Close(ctx); cerr != nil {
			slog.WarnContext(ctx, "wazero: failed to close runtime", "path", path, "error", cerr)
		}
		return nil, &derrors.LibraryOpenError{Path: path, Err: err}
	}

	if o.config.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			return fail(fmt.Errorf("failed to instantiate WASI: %w", err))
		}
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fail(fmt.Errorf("failed to compile module: %w", err))
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(filepath.Base(path)))
	if err != nil {
		return fail(fmt.Errorf("failed to instantiate module: %w", err))
	}

	if init := mod.ExportedFunction(abi.SymbolInitialize); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return fail(fmt.Errorf("failed to call %s: %w", abi.SymbolInitialize, err))
		}
	}

	if mod.Memory() == nil {
		return fail(fmt.Errorf("module does not export memory"))
	}

	slog.DebugContext(ctx, "wazero: module instantiated", "path", path, "size", len(wasmBytes))
	return &Module{
		runtime:       rt,
		module:        mod,
		path:          path,
		maxBufferSize: o.config.MaxBufferSize,
	}, nil
}
