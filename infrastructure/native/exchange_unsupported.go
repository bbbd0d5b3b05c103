//go:build (freebsd || linux || windows) && !amd64

package native

import (
	"fmt"
	"runtime"

	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/internal/abi"
)

// callExchange fails: the struct return of the legacy exchange symbol comes
// back through a register purego cannot set on this architecture.
func callExchange(_ uintptr, _ []byte, _ *retData) error {
	return &derrors.UnsupportedError{
		Feature: fmt.Sprintf("calling '%s'", abi.SymbolExchange),
		Reason:  "struct return values are not supported on " + runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// StructReturnSupported reports whether the legacy exchange symbol can be
// called on this platform.
const StructReturnSupported = false
