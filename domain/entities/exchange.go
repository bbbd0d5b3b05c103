package entities

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Revision identifies the calling convention of the exchange_inplace export.
// The number is the parameter count of the exported function.
type Revision uint32

const (
	// RevisionUnknown means no revision was advertised or configured.
	RevisionUnknown Revision = 0

	// Revision2 is exchange_inplace(buf, capacity).
	Revision2 Revision = 2

	// Revision3 is exchange_inplace(buf, capacity, used).
	Revision3 Revision = 3

	// Revision4 is exchange_inplace(buf, capacity, used, allow_mutation).
	Revision4 Revision = 4

	// DefaultRevision is assumed when a library does not export exchange_abi_version
	// and no revision is configured.
	DefaultRevision = Revision2
)

// Valid reports whether r is a revision the host can call.
func (r Revision) Valid() bool {
	return r >= Revision2 && r <= Revision4
}

// SupportsUsedSize reports whether the callee receives the logical data size.
func (r Revision) SupportsUsedSize() bool {
	return r >= Revision3
}

// SupportsMutationFlag reports whether the callee receives the allow-mutation flag.
func (r Revision) SupportsMutationFlag() bool {
	return r >= Revision4
}

func (r Revision) String() string {
	if r == RevisionUnknown {
		return "unknown"
	}
	return fmt.Sprintf("rev%d", uint32(r))
}

// Format is the binary format of a loadable module.
type Format string

const (
	// FormatNative is a platform shared object (.so, .dylib, .dll).
	FormatNative Format = "native"

	// FormatWasm is a WebAssembly module.
	FormatWasm Format = "wasm"
)

// FormatFromPath guesses the module format from its file extension.
// Anything that is not a .wasm file is handed to the platform loader.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".wasm") {
		return FormatWasm
	}
	return FormatNative
}

// ExchangeResult is the outcome of an in-place exchange.
type ExchangeResult struct {
	// Written is the number of bytes the callee wrote at the start of the buffer,
	// or in query mode the number it would have written. Zero means nothing was written.
	Written int `json:"written"`

	// Capacity is the buffer length handed to the callee.
	Capacity int `json:"capacity"`

	// UsedSize is the logical size passed to the callee (revision 3 and later).
	UsedSize int `json:"used_size"`

	// Query is true when mutation was disallowed and the buffer was left untouched.
	Query bool `json:"query,omitempty"`

	// Revision is the calling convention used for the call.
	Revision Revision `json:"revision"`
}

// Wrote reports whether the callee actually wrote into the caller's buffer.
func (r ExchangeResult) Wrote() bool {
	return r.Written > 0 && !r.Query
}
