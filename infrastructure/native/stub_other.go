//go:build !darwin && !freebsd && !linux && !windows

package native

import (
	"context"
	"runtime"

	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/domain/ports"
)

// Opener reports that native libraries cannot be opened on this platform.
type Opener struct{}

// NewOpener creates an Opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open always fails with UnsupportedError.
func (o *Opener) Open(_ context.Context, path string) (ports.Module, error) {
	return nil, &derrors.UnsupportedError{
		Feature: "native libraries",
		Reason:  "no dynamic loader for " + runtime.GOOS + " (" + path + ")",
	}
}
