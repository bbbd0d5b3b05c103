// Package wazero loads WebAssembly modules that implement the exchange ABI
// and runs them in-process with the wazero runtime.
//
// Guest modules export linear memory plus "allocate" and "deallocate". The host
// copies the caller's buffer into guest memory, calls "exchange_inplace" with the
// guest pointer, and copies the reported bytes back. The legacy "exchange" export
// returns a packed i64 (pointer in the high 32 bits, length in the low 32 bits)
// that the host releases through "deallocate".
package wazero
