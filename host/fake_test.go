package host_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/dylib-host/domain/entities"
	"github.com/reglet-dev/dylib-host/domain/ports"
)

// fakeModule is an in-memory ports.Module.
type fakeModule struct {
	advertised   entities.Revision
	advertise    bool
	response     []byte
	closeErr     error
	writtenDelta int

	mu       sync.Mutex
	calls    []entities.Revision
	closed   int
	released atomic.Int32
}

func (m *fakeModule) AdvertisedRevision(context.Context) (entities.Revision, bool, error) {
	return m.advertised, m.advertise, nil
}

func (m *fakeModule) CallInPlace(_ context.Context, rev entities.Revision, buf []byte, _ int, allowMutation bool) (uint64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, rev)
	m.mu.Unlock()

	msg := []byte("fake")
	if len(buf) < len(msg) {
		return 0, nil
	}
	if allowMutation {
		copy(buf, msg)
	}
	return uint64(len(msg) + m.writtenDelta), nil //nolint:gosec // G115: test values
}

func (m *fakeModule) CallByValue(_ context.Context, data []byte) (ports.Allocation, error) {
	if m.response == nil {
		return &fakeAllocation{module: m}, nil
	}
	out := append(append([]byte{}, m.response...), data...)
	return &fakeAllocation{module: m, data: out}, nil
}

func (m *fakeModule) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

func (m *fakeModule) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeAllocation struct {
	module *fakeModule
	data   []byte
}

func (a *fakeAllocation) Data() []byte {
	return a.data
}

func (a *fakeAllocation) Release(context.Context) error {
	a.module.released.Add(1)
	return nil
}

// fakeOpener hands out one fakeModule.
type fakeOpener struct {
	module *fakeModule
	err    error
	paths  []string
}

func (o *fakeOpener) Open(_ context.Context, path string) (ports.Module, error) {
	o.paths = append(o.paths, path)
	if o.err != nil {
		return nil, o.err
	}
	return o.module, nil
}
