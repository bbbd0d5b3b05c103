//go:build darwin || freebsd || linux || windows

package native

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/reglet-dev/dylib-host/domain/entities"
	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/domain/ports"
	"github.com/reglet-dev/dylib-host/internal/abi"
)

// Foreign signatures of exchange_inplace, one per revision.
type (
	inPlaceRev2 func(buf unsafe.Pointer, capacity uintptr) uintptr
	inPlaceRev3 func(buf unsafe.Pointer, capacity, used uintptr) uintptr
	inPlaceRev4 func(buf unsafe.Pointer, capacity, used uintptr, allowMutation int32) uintptr
	versionFunc func() uint32
)

// retData mirrors the C struct returned by the legacy exchange symbol:
// struct { void* data; size_t size; void (*release)(void*); }.
type retData struct {
	Data    unsafe.Pointer
	Size    uintptr
	Release uintptr
}

// Opener opens shared objects with the platform loader.
type Opener struct{}

// NewOpener creates an Opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open loads the shared object at path.
// A bare name is left to the platform search path; a path with a separator
// that does not exist fails with an error wrapping fs.ErrNotExist.
func (o *Opener) Open(ctx context.Context, path string) (ports.Module, error) {
	if strings.ContainsAny(path, `/\`) {
		if _, err := os.Stat(path); err != nil {
			return nil, &derrors.LibraryOpenError{Path: path, Err: err}
		}
	}

	handle, err := openLibrary(path)
	if err != nil {
		return nil, &derrors.LibraryOpenError{Path: path, Err: err}
	}
	if handle == 0 {
		return nil, &derrors.LibraryOpenError{Path: path, Err: fmt.Errorf("loader returned a null handle")}
	}

	slog.DebugContext(ctx, "native: library opened", "path", path)
	return &Module{handle: handle, path: path}, nil
}

// Module is a shared object opened by the platform loader.
// Calls are not serialized; the library decides its own thread safety.
type Module struct {
	handle uintptr
	path   string
}

var _ ports.Module = (*Module)(nil)

// Path returns the path the library was opened from.
func (m *Module) Path() string {
	return m.path
}

// AdvertisedRevision calls exchange_abi_version when exported.
func (m *Module) AdvertisedRevision(_ context.Context) (entities.Revision, bool, error) {
	addr, err := lookupSymbol(m.handle, abi.SymbolABIVersion)
	if err != nil || addr == 0 {
		return entities.RevisionUnknown, false, nil
	}

	var version versionFunc
	if err := register(&version, addr, abi.SymbolABIVersion); err != nil {
		return entities.RevisionUnknown, true, err
	}
	return entities.Revision(version()), true, nil
}

// CallInPlace calls exchange_inplace with the calling convention of rev.
// The callee writes straight into buf.
func (m *Module) CallInPlace(_ context.Context, rev entities.Revision, buf []byte, used int, allowMutation bool) (uint64, error) {
	addr, err := m.resolve(abi.SymbolExchangeInPlace)
	if err != nil {
		return 0, err
	}

	ptr := bufferPointer(buf)
	capacity := uintptr(len(buf))

	var written uintptr
	switch rev {
	case entities.Revision2:
		var fn inPlaceRev2
		if err := register(&fn, addr, abi.SymbolExchangeInPlace); err != nil {
			return 0, err
		}
		written = fn(ptr, capacity)
	case entities.Revision3:
		var fn inPlaceRev3
		if err := register(&fn, addr, abi.SymbolExchangeInPlace); err != nil {
			return 0, err
		}
		written = fn(ptr, capacity, uintptr(used)) //nolint:gosec // G115: used is validated by the host
	case entities.Revision4:
		var fn inPlaceRev4
		if err := register(&fn, addr, abi.SymbolExchangeInPlace); err != nil {
			return 0, err
		}
		written = fn(ptr, capacity, uintptr(used), boolParam(allowMutation)) //nolint:gosec // G115: used is validated by the host
	default:
		return 0, &derrors.UnsupportedRevisionError{Pinned: rev}
	}
	runtime.KeepAlive(buf)

	return uint64(written), nil
}

// CallByValue calls the legacy exchange symbol. The returned allocation holds
// the library's release callback.
func (m *Module) CallByValue(_ context.Context, data []byte) (ports.Allocation, error) {
	addr, err := m.resolve(abi.SymbolExchange)
	if err != nil {
		return nil, err
	}

	alloc := &foreignAllocation{}
	if err := callExchange(addr, data, &alloc.ret); err != nil {
		return nil, err
	}
	return alloc, nil
}

// Close unloads the library.
func (m *Module) Close(ctx context.Context) error {
	if err := closeLibrary(m.handle); err != nil {
		return fmt.Errorf("failed to close %s: %w", m.path, err)
	}
	slog.DebugContext(ctx, "native: library closed", "path", m.path)
	return nil
}

func (m *Module) resolve(name string) (uintptr, error) {
	addr, err := lookupSymbol(m.handle, name)
	if err != nil {
		return 0, &derrors.SymbolNotFoundError{Symbol: name, Err: err}
	}
	if addr == 0 {
		return 0, &derrors.SymbolNotFoundError{Symbol: name}
	}
	return addr, nil
}

// foreignAllocation is a ret_data returned by the library.
type foreignAllocation struct {
	ret retData
}

func (a *foreignAllocation) Data() []byte {
	if a.ret.Data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(a.ret.Data), a.ret.Size)
}

func (a *foreignAllocation) Release(_ context.Context) error {
	if a.ret.Data == nil || a.ret.Release == 0 {
		return nil
	}
	purego.SyscallN(a.ret.Release, uintptr(a.ret.Data))
	return nil
}

// register binds fn to the foreign function at addr. purego panics on
// signatures the platform cannot call; that panic becomes an error.
func register(fn any, addr uintptr, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &derrors.UnsupportedError{
				Feature: fmt.Sprintf("calling '%s'", symbol),
				Reason:  fmt.Sprint(r),
			}
		}
	}()
	purego.RegisterFunc(fn, addr)
	return nil
}

func bufferPointer(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(buf))
}

func boolParam(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
