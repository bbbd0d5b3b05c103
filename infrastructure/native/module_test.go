//go:build darwin || freebsd || linux

package native

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/dylib-host/domain/entities"
	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/internal/testutil"
)

func buildLibrary(t *testing.T, source string, defines ...string) string {
	t.Helper()
	return testutil.BuildSharedLibrary(t, filepath.Join("testdata", source), defines...)
}

func openLibraryModule(t *testing.T, path string) *Module {
	t.Helper()
	ctx := context.Background()

	mod, err := NewOpener().Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mod.Close(ctx) })

	m, ok := mod.(*Module)
	require.True(t, ok)
	return m
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := NewOpener().Open(context.Background(), filepath.Join(t.TempDir(), "missing.so"))
	require.Error(t, err)

	var openErr *derrors.LibraryOpenError
	require.True(t, errors.As(err, &openErr))
	assert.True(t, openErr.NotFound())
}

func TestOpen_NotALibrary(t *testing.T) {
	_, err := NewOpener().Open(context.Background(), filepath.Join("testdata", "inplace.c"))
	require.Error(t, err)

	var openErr *derrors.LibraryOpenError
	require.True(t, errors.As(err, &openErr))
	assert.False(t, openErr.NotFound())
	assert.Contains(t, err.Error(), "cannot open library at")
}

func TestCallInPlace_Revision2(t *testing.T) {
	ctx := context.Background()
	m := openLibraryModule(t, buildLibrary(t, "inplace.c"))

	_, ok, err := m.AdvertisedRevision(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	buf := make([]byte, 64)
	n, err := m.CallInPlace(ctx, entities.Revision2, buf, len(buf), true)
	require.NoError(t, err)
	testutil.AssertWritten(t, testutil.InPlaceMessage, buf, int(n))

	small := testutil.Filled(8, 'x')
	n, err = m.CallInPlace(ctx, entities.Revision2, small, len(small), true)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, testutil.Filled(8, 'x'), small)
}

func TestCallInPlace_Revision4(t *testing.T) {
	ctx := context.Background()
	m := openLibraryModule(t, buildLibrary(t, "inplace.c", "REVISION=4"))

	rev, ok, err := m.AdvertisedRevision(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entities.Revision4, rev)

	buf := testutil.Filled(64, 'x')
	n, err := m.CallInPlace(ctx, entities.Revision4, buf, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(testutil.InPlaceMessage)), n)
	assert.Equal(t, testutil.Filled(64, 'x'), buf)

	n, err = m.CallInPlace(ctx, entities.Revision4, buf, 0, true)
	require.NoError(t, err)
	testutil.AssertWritten(t, testutil.InPlaceMessage, buf, int(n))
}

func TestCallInPlace_UnknownRevision(t *testing.T) {
	m := openLibraryModule(t, buildLibrary(t, "inplace.c"))

	_, err := m.CallInPlace(context.Background(), entities.Revision(7), make([]byte, 64), 64, true)
	var revErr *derrors.UnsupportedRevisionError
	assert.True(t, errors.As(err, &revErr))
}

func TestCallInPlace_MissingSymbol(t *testing.T) {
	m := openLibraryModule(t, buildLibrary(t, "legacy.c"))

	_, err := m.CallInPlace(context.Background(), entities.Revision2, make([]byte, 64), 64, true)
	var symErr *derrors.SymbolNotFoundError
	require.True(t, errors.As(err, &symErr))
	assert.Equal(t, "exchange_inplace", symErr.Symbol)
}

func releaseCount(t *testing.T, m *Module) int32 {
	t.Helper()
	addr, err := m.resolve("release_count")
	require.NoError(t, err)
	var fn func() int32
	require.NoError(t, register(&fn, addr, "release_count"))
	return fn()
}

func requireStructReturn(t *testing.T) {
	t.Helper()
	if !StructReturnSupported {
		t.Skipf("legacy exchange is not callable on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}

func TestCallByValue(t *testing.T) {
	requireStructReturn(t)
	ctx := context.Background()
	m := openLibraryModule(t, buildLibrary(t, "legacy.c"))

	alloc, err := m.CallByValue(ctx, []byte("test"))
	require.NoError(t, err)

	assert.Equal(t, testutil.LegacyPrefix+"test\x00", string(alloc.Data()))

	before := releaseCount(t, m)
	require.NoError(t, alloc.Release(ctx))
	assert.Equal(t, before+1, releaseCount(t, m))
}

func TestCallByValue_NullResult(t *testing.T) {
	requireStructReturn(t)
	ctx := context.Background()
	m := openLibraryModule(t, buildLibrary(t, "legacy.c", "NULL_RESULT"))

	alloc, err := m.CallByValue(ctx, []byte("test"))
	require.NoError(t, err)
	assert.Nil(t, alloc.Data())
	assert.NoError(t, alloc.Release(ctx))
	assert.Equal(t, int32(0), releaseCount(t, m))
}

func TestCallByValue_ReleasesEachResponseOnce(t *testing.T) {
	requireStructReturn(t)
	ctx := context.Background()
	m := openLibraryModule(t, buildLibrary(t, "legacy.c"))

	for i := 0; i < 3; i++ {
		alloc, err := m.CallByValue(ctx, []byte("test"))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(strings.TrimRight(string(alloc.Data()), "\x00"), "test"))
		require.NoError(t, alloc.Release(ctx))
		assert.Equal(t, int32(i+1), releaseCount(t, m))
	}
}

func TestCallByValue_Unsupported(t *testing.T) {
	if StructReturnSupported {
		t.Skip("legacy exchange is callable on this platform")
	}
	m := openLibraryModule(t, buildLibrary(t, "legacy.c"))

	_, err := m.CallByValue(context.Background(), []byte("test"))
	var unsupported *derrors.UnsupportedError
	assert.True(t, errors.As(err, &unsupported))
}
