package native

import (
	"unsafe"

	"github.com/reglet-dev/dylib-host/internal/abi"
)

type exchangeFunc func(data unsafe.Pointer, size uintptr) retData

// callExchange lets purego handle the struct return, which it supports on
// darwin for both amd64 and arm64.
func callExchange(addr uintptr, data []byte, ret *retData) error {
	var fn exchangeFunc
	if err := register(&fn, addr, abi.SymbolExchange); err != nil {
		return err
	}
	*ret = fn(bufferPointer(data), uintptr(len(data)))
	return nil
}

// StructReturnSupported reports whether the legacy exchange symbol can be
// called on this platform.
const StructReturnSupported = true
