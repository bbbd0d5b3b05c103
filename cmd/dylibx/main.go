// Command dylibx loads a dynamic library and exchanges buffers with it.
package main

import (
	"fmt"
	"os"

	derrors "github.com/reglet-dev/dylib-host/domain/errors"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		detail := derrors.ToErrorDetail(err)
		fmt.Fprintf(os.Stderr, "dylibx: %s\n", detail.Error())
		os.Exit(exitCode(detail))
	}
}

// exitCode is 2 for caller mistakes and 1 for everything else.
func exitCode(d *derrors.ErrorDetail) int {
	if d != nil && d.Type == "argument" {
		return 2
	}
	return 1
}
