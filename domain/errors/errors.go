// Package errors provides the error types reported by the exchange host.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"io/fs"

	"github.com/reglet-dev/dylib-host/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can describe themselves
// as a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// AlreadyLoadedError is returned when a load is attempted while a library is held.
type AlreadyLoadedError struct {
	// Name identifies the slot (registry name) when there is one.
	Name string
	// Path is the path of the library currently held.
	Path string
}

func (e *AlreadyLoadedError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("library %q already loaded from %s", e.Name, e.Path)
	}
	if e.Path != "" {
		return fmt.Sprintf("library already loaded from %s", e.Path)
	}
	return "library already loaded"
}

// ToErrorDetail implements DetailedError.
func (e *AlreadyLoadedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "state", Code: "already_loaded"}
}

// NotLoadedError is returned by operations that need a loaded library.
type NotLoadedError struct {
	// Name identifies the slot (registry name) when there is one.
	Name string
}

func (e *NotLoadedError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("library %q not loaded", e.Name)
	}
	return "library not loaded"
}

// ToErrorDetail implements DetailedError.
func (e *NotLoadedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "state", Code: "not_loaded"}
}

// LibraryOpenError wraps a platform loader failure.
type LibraryOpenError struct {
	Err  error
	Path string
}

func (e *LibraryOpenError) Error() string {
	return fmt.Sprintf("cannot open library at '%s': %v", e.Path, e.Err)
}

func (e *LibraryOpenError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the library file does not exist.
func (e *LibraryOpenError) NotFound() bool {
	return stdErrors.Is(e.Err, fs.ErrNotExist)
}

// ToErrorDetail implements DetailedError.
func (e *LibraryOpenError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "open", Code: e.Path, IsNotFound: e.NotFound()}
}

// SymbolNotFoundError is returned when an export cannot be resolved.
type SymbolNotFoundError struct {
	Err    error
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot load symbol '%s': %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("cannot load symbol '%s'", e.Symbol)
}

func (e *SymbolNotFoundError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SymbolNotFoundError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "symbol", Code: e.Symbol, IsNotFound: true}
}

// NullResultError is returned when a by-value exchange yields no data.
type NullResultError struct {
	Symbol string
}

func (e *NullResultError) Error() string {
	return fmt.Sprintf("received null data from '%s'", e.Symbol)
}

// ToErrorDetail implements DetailedError.
func (e *NullResultError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "abi", Code: "null_result"}
}

// UnsupportedRevisionError is returned when revision negotiation fails at load time.
type UnsupportedRevisionError struct {
	Advertised entities.Revision
	Pinned     entities.Revision
}

func (e *UnsupportedRevisionError) Error() string {
	if e.Pinned != entities.RevisionUnknown && e.Advertised != entities.RevisionUnknown {
		return fmt.Sprintf("library advertises exchange %s but %s is required", e.Advertised, e.Pinned)
	}
	if e.Advertised != entities.RevisionUnknown {
		return fmt.Sprintf("unsupported exchange revision %s", e.Advertised)
	}
	return fmt.Sprintf("unsupported exchange revision %s", e.Pinned)
}

// ToErrorDetail implements DetailedError.
func (e *UnsupportedRevisionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "abi", Code: "unsupported_revision"}
}

// ContractViolationError is returned when a callee reports more bytes than it was given.
type ContractViolationError struct {
	Symbol   string
	Written  uint64
	Capacity int
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("'%s' reported %d bytes written into a %d byte buffer", e.Symbol, e.Written, e.Capacity)
}

// ToErrorDetail implements DetailedError.
func (e *ContractViolationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "abi", Code: "contract_violation"}
}

// InvalidArgumentError is returned for caller mistakes detected before any foreign call.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Reason)
}

// ToErrorDetail implements DetailedError.
func (e *InvalidArgumentError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "argument", Code: e.Argument}
}

// UnsupportedError is returned when the platform or backend cannot perform an operation.
type UnsupportedError struct {
	Feature string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s is not supported: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("%s is not supported", e.Feature)
}

// ToErrorDetail implements DetailedError.
func (e *UnsupportedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "unsupported", Code: e.Feature}
}
