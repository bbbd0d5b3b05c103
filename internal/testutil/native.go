package testutil

import (
	"os/exec"
	"path/filepath"
	"testing"
)

// BuildSharedLibrary compiles the C source at path into a shared object in a
// temporary directory and returns its path. Each define is passed as -D.
// The test is skipped when no C compiler is available.
func BuildSharedLibrary(t *testing.T, source string, defines ...string) string {
	t.Helper()

	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	out := filepath.Join(t.TempDir(), "libdlib.so")
	args := []string{"-shared", "-fPIC", "-o", out, source}
	for _, d := range defines {
		args = append(args, "-D"+d)
	}
	if output, err := exec.Command(cc, args...).CombinedOutput(); err != nil { //nolint:gosec // G204: test fixture build
		t.Skipf("failed to compile %s: %v\n%s", source, err, output)
	}
	return out
}
