package host

import (
	"context"
	"sync"

	"github.com/reglet-dev/dylib-host/domain/ports"
)

// ForeignBuffer is a by-value exchange result still owned by the library.
// Release hands it back; only the first call reaches the library.
type ForeignBuffer struct {
	alloc ports.Allocation
	owner *Library

	mu       sync.Mutex
	released bool
	err      error
}

// Bytes returns a copy of the foreign data, nil once released.
func (b *ForeignBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	data := b.alloc.Data()
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Len returns the size of the foreign data, zero once released.
func (b *ForeignBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return 0
	}
	return len(b.alloc.Data())
}

// Released reports whether the buffer was handed back to the library.
func (b *ForeignBuffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Release hands the buffer back to the library. It is safe to call more than
// once and after the library was unloaded.
func (b *ForeignBuffer) Release(ctx context.Context) error {
	if b.owner == nil {
		return b.release(ctx)
	}
	return b.owner.releaseBorrowed(ctx, b)
}

func (b *ForeignBuffer) release(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return b.err
	}
	b.released = true
	b.err = b.alloc.Release(ctx)
	return b.err
}
