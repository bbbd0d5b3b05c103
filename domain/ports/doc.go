// Package ports defines interfaces for infrastructure operations.
// The host depends on these abstractions; the native and wasm backends
// implement them.
package ports
