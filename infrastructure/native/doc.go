// Package native opens platform shared objects (.so, .dylib, .dll) as
// exchange modules.
//
// Symbols are resolved with purego on unix and golang.org/x/sys/windows on
// Windows, and called through purego so no cgo is required. The legacy
// exchange symbol returns a struct; it is callable on darwin and on amd64
// (see StructReturnSupported).
package native
