package host

import (
	"context"
	"sync"

	derrors "github.com/reglet-dev/dylib-host/domain/errors"
)

// DefaultLoader loads the process-wide library.
var DefaultLoader = NewLoader()

var (
	globalMu  sync.Mutex
	globalLib *Library
)

// LoadDyLib loads the process-wide library. It fails with AlreadyLoadedError
// while a library is held.
func LoadDyLib(ctx context.Context, path string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLib != nil {
		return &derrors.AlreadyLoadedError{Path: globalLib.Path()}
	}
	lib, err := DefaultLoader.Load(ctx, path)
	if err != nil {
		return err
	}
	globalLib = lib
	return nil
}

// UnloadDyLib unloads the process-wide library. It fails with NotLoadedError
// when nothing is loaded.
func UnloadDyLib(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLib == nil {
		return &derrors.NotLoadedError{}
	}
	lib := globalLib
	globalLib = nil
	return lib.Unload(ctx)
}

// ExchangeInPlace exchanges buf with the process-wide library.
func ExchangeInPlace(ctx context.Context, buf []byte, opts ...ExchangeOption) (int, error) {
	lib := current()
	if lib == nil {
		return 0, &derrors.NotLoadedError{}
	}
	return lib.ExchangeInPlace(ctx, buf, opts...)
}

// ExchangeByValue calls the legacy exchange of the process-wide library.
func ExchangeByValue(ctx context.Context, data []byte) ([]byte, error) {
	lib := current()
	if lib == nil {
		return nil, &derrors.NotLoadedError{}
	}
	return lib.ExchangeByValue(ctx, data)
}

// Current returns the process-wide library, nil when none is loaded.
func Current() *Library {
	return current()
}

func current() *Library {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLib
}
