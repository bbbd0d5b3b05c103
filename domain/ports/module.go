package ports

import (
	"context"

	"github.com/reglet-dev/dylib-host/domain/entities"
)

// Opener opens a module of one format.
type Opener interface {
	// Open loads the module at path. Failures are *errors.LibraryOpenError.
	Open(ctx context.Context, path string) (Module, error)
}

// Module is an opened dynamic module as seen by the host.
// Implementations resolve exports lazily, on first use.
type Module interface {
	// AdvertisedRevision calls exchange_abi_version if the module exports it.
	// ok is false when the export does not exist.
	AdvertisedRevision(ctx context.Context) (rev entities.Revision, ok bool, err error)

	// CallInPlace invokes exchange_inplace with the calling convention of rev
	// and returns the raw byte count reported by the callee.
	// For revisions below 4 allowMutation is not passed to the callee.
	CallInPlace(ctx context.Context, rev entities.Revision, buf []byte, used int, allowMutation bool) (uint64, error)

	// CallByValue invokes the legacy exchange export. The returned allocation is
	// owned by the module until it is released.
	CallByValue(ctx context.Context, data []byte) (Allocation, error)

	// Close releases the module. It must be called at most once.
	Close(ctx context.Context) error
}

// Allocation is memory owned by a module and handed to the host.
type Allocation interface {
	// Data returns a view of the module-owned bytes, nil for a null result.
	// The view is only valid until Release.
	Data() []byte

	// Release hands the memory back to the module. Calling it twice is a double free;
	// callers guard it.
	Release(ctx context.Context) error
}
