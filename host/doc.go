// Package host loads dynamic modules and exchanges caller-owned buffers with them.
//
// A Loader opens a native shared object or a WebAssembly module, negotiates the
// exchange_inplace calling convention once, and returns a Library handle. The
// Library exchanges buffers in place, calls the legacy by-value exchange and
// unloads the module. Registry keeps several named libraries, and the package
// level LoadDyLib/UnloadDyLib/ExchangeInPlace functions keep the single process
// wide handle older callers expect.
package host
