// Package abi holds the exported symbol names and value encodings shared by
// the host and the modules it loads.
package abi

// Exported symbol names looked up in a loaded module.
const (
	// SymbolExchangeInPlace writes into caller-owned memory and returns the byte count.
	SymbolExchangeInPlace = "exchange_inplace"

	// SymbolExchange is the legacy by-value exchange returning module-owned memory.
	SymbolExchange = "exchange"

	// SymbolABIVersion optionally advertises the exchange_inplace revision.
	SymbolABIVersion = "exchange_abi_version"

	// SymbolAllocate reserves guest memory in a WebAssembly module.
	SymbolAllocate = "allocate"

	// SymbolDeallocate frees guest memory in a WebAssembly module.
	SymbolDeallocate = "deallocate"

	// SymbolInitialize is the WASI reactor initializer.
	SymbolInitialize = "_initialize"
)

// PtrHighBits is the shift of the pointer half of a packed value.
const PtrHighBits = 32

// UnpackPtrLen splits a packed uint64 into pointer and length.
// It never panics: the value comes from untrusted module code, so callers
// check Valid.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> PtrHighBits)  //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}

// Valid reports whether a packed value is usable: a null pointer must carry
// a zero length.
func Valid(packed uint64) bool {
	ptr, length := UnpackPtrLen(packed)
	return ptr != 0 || length == 0
}

// IsNull reports whether a packed value denotes "no data".
func IsNull(packed uint64) bool {
	ptr, _ := UnpackPtrLen(packed)
	return ptr == 0
}
