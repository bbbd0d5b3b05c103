//go:build freebsd || linux || windows

package native

import (
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// callExchange calls the legacy exchange symbol with caller-provided return
// storage. ret_data is larger than 16 bytes, so both the SysV and the
// Windows x64 conventions pass its address as a hidden first argument.
// ret must point to heap memory.
func callExchange(addr uintptr, data []byte, ret *retData) error {
	purego.SyscallN(addr,
		uintptr(unsafe.Pointer(ret)),
		uintptr(bufferPointer(data)),
		uintptr(len(data)),
	)
	runtime.KeepAlive(ret)
	runtime.KeepAlive(data)
	return nil
}

// StructReturnSupported reports whether the legacy exchange symbol can be
// called on this platform.
const StructReturnSupported = true
