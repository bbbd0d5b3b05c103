// Package entities provides the core domain types of the exchange host:
// ABI revisions, module formats, exchange requests and results, and the
// host configuration model.
package entities
