// Package testutil provides fixtures and assertions shared by host and backend tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WriteModule builds m and writes it into a temporary directory,
// returning the path of the .wasm file.
func WriteModule(t *testing.T, m ExchangeModule) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dlib.wasm")
	require.NoError(t, os.WriteFile(path, m.Build(), 0o600), "write wasm module")
	return path
}

// AssertWritten asserts that exactly len(expected) bytes were reported and
// that the buffer starts with them.
func AssertWritten(t *testing.T, expected string, buf []byte, n int, msgAndArgs ...interface{}) {
	t.Helper()

	require.Equal(t, len(expected), n, msgAndArgs...)
	require.LessOrEqual(t, n, len(buf), "byte count exceeds capacity")
	assert.Equal(t, expected, string(buf[:n]), msgAndArgs...)
}

// Filled returns a buffer of the given size with every byte set to fill.
func Filled(size int, fill byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = fill
	}
	return buf
}
