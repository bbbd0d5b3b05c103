package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/dylib-host/domain/entities"
	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/internal/abi"
)

// Module is an instantiated exchange module.
// wazero module instances are not safe for concurrent calls, so every guest
// call is serialized by mu.
type Module struct {
	runtime       wazero.Runtime
	module        api.Module
	path          string
	maxBufferSize uint32

	mu sync.Mutex
}

var _ ports.Module = (*Module)(nil)

// Path returns the file the module was loaded from.
func (m *Module) Path() string {
	return m.path
}

// AdvertisedRevision calls exchange_abi_version when exported.
func (m *Module) AdvertisedRevision(ctx context.Context) (entities.Revision, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.module.ExportedFunction(abi.SymbolABIVersion)
	if f == nil {
		return entities.RevisionUnknown, false, nil
	}
	results, err := f.Call(ctx)
	if err != nil {
		return entities.RevisionUnknown, true, fmt.Errorf("failed to call %s: %w", abi.SymbolABIVersion, err)
	}
	if len(results) == 0 {
		return entities.RevisionUnknown, true, fmt.Errorf("%s returned no results", abi.SymbolABIVersion)
	}
	return entities.Revision(uint32(results[0])), true, nil //nolint:gosec // G115: i32 result
}

// CallInPlace copies buf into guest memory, calls exchange_inplace, and copies
// the reported bytes back when mutation is allowed.
func (m *Module) CallInPlace(ctx context.Context, rev entities.Revision, buf []byte, used int, allowMutation bool) (uint64, error) {
	if uint64(len(buf)) > uint64(m.maxBufferSize) {
		return 0, &derrors.InvalidArgumentError{
			Argument: "buffer",
			Reason:   fmt.Sprintf("%d bytes exceeds guest limit %d", len(buf), m.maxBufferSize),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.module.ExportedFunction(abi.SymbolExchangeInPlace)
	if f == nil {
		return 0, &derrors.SymbolNotFoundError{Symbol: abi.SymbolExchangeInPlace, Err: fmt.Errorf("export not found in %s", m.path)}
	}
	if got := len(f.Definition().ParamTypes()); got != int(rev) {
		return 0, &derrors.UnsupportedRevisionError{Advertised: entities.Revision(got), Pinned: rev} //nolint:gosec // G115: small count
	}

	capacity := uint32(len(buf)) //nolint:gosec // G115: bounded by maxBufferSize
	ptr, err := m.allocate(ctx, capacity)
	if err != nil {
		return 0, err
	}
	defer m.free(ctx, ptr, capacity)

	if capacity > 0 && !m.module.Memory().Write(ptr, buf) {
		return 0, fmt.Errorf("failed to write buffer to guest memory")
	}

	params := []uint64{uint64(ptr), uint64(capacity)}
	if rev.SupportsUsedSize() {
		params = append(params, uint64(uint32(used))) //nolint:gosec // G115: used <= capacity
	}
	if rev.SupportsMutationFlag() {
		params = append(params, boolParam(allowMutation))
	}

	results, err := f.Call(ctx, params...)
	if err != nil {
		return 0, fmt.Errorf("%s trapped: %w", abi.SymbolExchangeInPlace, err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%s returned no results", abi.SymbolExchangeInPlace)
	}
	written := uint64(uint32(results[0])) //nolint:gosec // G115: i32 result

	if allowMutation && written > 0 && written <= uint64(capacity) {
		out, ok := m.module.Memory().Read(ptr, uint32(written))
		if !ok {
			return 0, fmt.Errorf("failed to read buffer from guest memory")
		}
		copy(buf, out)
	}
	return written, nil
}

// CallByValue calls the legacy exchange export. The guest keeps ownership of
// the response until the returned allocation is released.
func (m *Module) CallByValue(ctx context.Context, data []byte) (ports.Allocation, error) {
	if uint64(len(data)) > uint64(m.maxBufferSize) {
		return nil, &derrors.InvalidArgumentError{
			Argument: "data",
			Reason:   fmt.Sprintf("%d bytes exceeds guest limit %d", len(data), m.maxBufferSize),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.module.ExportedFunction(abi.SymbolExchange)
	if f == nil {
		return nil, &derrors.SymbolNotFoundError{Symbol: abi.SymbolExchange, Err: fmt.Errorf("export not found in %s", m.path)}
	}

	length := uint32(len(data)) //nolint:gosec // G115: bounded by maxBufferSize
	ptr, err := m.allocate(ctx, length)
	if err != nil {
		return nil, err
	}
	defer m.free(ctx, ptr, length)

	if length > 0 && !m.module.Memory().Write(ptr, data) {
		return nil, fmt.Errorf("failed to write input to guest memory")
	}

	results, err := f.Call(ctx, uint64(ptr), uint64(length))
	if err != nil {
		return nil, fmt.Errorf("%s trapped: %w", abi.SymbolExchange, err)
	}
	if len(results) == 0 || abi.IsNull(results[0]) {
		return &guestAllocation{module: m}, nil
	}
	if !abi.Valid(results[0]) {
		return nil, fmt.Errorf("%s returned an invalid packed value %#x", abi.SymbolExchange, results[0])
	}

	respPtr, respLen := abi.UnpackPtrLen(results[0])
	view, ok := m.module.Memory().Read(respPtr, respLen)
	if !ok {
		return nil, fmt.Errorf("failed to read response from guest memory")
	}
	return &guestAllocation{module: m, ptr: respPtr, length: respLen, data: view}, nil
}

// Close closes the module's runtime and everything compiled in it.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtime.Close(ctx)
}

func (m *Module) allocate(ctx context.Context, size uint32) (uint32, error) {
	allocate := m.module.ExportedFunction(abi.SymbolAllocate)
	if allocate == nil {
		return 0, &derrors.SymbolNotFoundError{Symbol: abi.SymbolAllocate, Err: fmt.Errorf("guest does not export '%s'", abi.SymbolAllocate)}
	}
	results, err := allocate.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate in guest: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocate returned no results")
	}
	return uint32(results[0]), nil //nolint:gosec // G115: WASM32 pointers are always 32-bit
}

// free returns guest memory; the guest may not export deallocate.
func (m *Module) free(ctx context.Context, ptr, size uint32) {
	if err := m.deallocate(ctx, ptr, size); err != nil {
		slog.WarnContext(ctx, "wazero: failed to free guest buffer", "path", m.path, "error", err)
	}
}

func (m *Module) deallocate(ctx context.Context, ptr, size uint32) error {
	deallocate := m.module.ExportedFunction(abi.SymbolDeallocate)
	if deallocate == nil {
		return nil
	}
	if _, err := deallocate.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		return fmt.Errorf("failed to deallocate in guest: %w", err)
	}
	return nil
}

// guestAllocation is a legacy response living in guest memory.
type guestAllocation struct {
	module *Module
	data   []byte
	ptr    uint32
	length uint32
}

func (a *guestAllocation) Data() []byte {
	return a.data
}

func (a *guestAllocation) Release(ctx context.Context) error {
	if a.ptr == 0 {
		return nil
	}
	a.module.mu.Lock()
	defer a.module.mu.Unlock()
	return a.module.deallocate(ctx, a.ptr, a.length)
}

func boolParam(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
