package host_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/reglet-dev/dylib-host/domain/entities"
	derrors "github.com/reglet-dev/dylib-host/domain/errors"
	"github.com/reglet-dev/dylib-host/host"
	"github.com/reglet-dev/dylib-host/internal/testutil"
)

// LibrarySuite exchanges buffers with generated WebAssembly modules.
type LibrarySuite struct {
	suite.Suite
	ctx context.Context
}

func (s *LibrarySuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *LibrarySuite) load(m testutil.ExchangeModule) *host.Library {
	lib, err := host.NewLoader().Load(s.ctx, testutil.WriteModule(s.T(), m))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = lib.Unload(s.ctx) })
	return lib
}

func (s *LibrarySuite) TestExchangeInPlace() {
	lib := s.load(testutil.ExchangeModule{})
	buf := make([]byte, 64)

	n, err := lib.ExchangeInPlace(s.ctx, buf)
	s.Require().NoError(err)
	s.LessOrEqual(n, len(buf))
	testutil.AssertWritten(s.T(), testutil.InPlaceMessage, buf, n)
}

func (s *LibrarySuite) TestExchangeInPlace_ExactCapacity() {
	lib := s.load(testutil.ExchangeModule{})
	buf := make([]byte, len(testutil.InPlaceMessage))

	n, err := lib.ExchangeInPlace(s.ctx, buf)
	s.Require().NoError(err)
	testutil.AssertWritten(s.T(), testutil.InPlaceMessage, buf, n)
}

func (s *LibrarySuite) TestExchangeInPlace_InsufficientCapacity() {
	lib := s.load(testutil.ExchangeModule{})

	for _, size := range []int{0, 1, len(testutil.InPlaceMessage) - 1} {
		buf := testutil.Filled(size, 'x')
		n, err := lib.ExchangeInPlace(s.ctx, buf)
		s.Require().NoError(err)
		s.Zero(n, "size %d", size)
		s.Equal(testutil.Filled(size, 'x'), buf)
	}
}

func (s *LibrarySuite) TestExchange_UsedSizeValidation() {
	lib := s.load(testutil.ExchangeModule{})

	for _, used := range []int{-1, 65} {
		_, err := lib.Exchange(s.ctx, make([]byte, 64), host.WithUsedSize(used))
		var argErr *derrors.InvalidArgumentError
		s.Require().True(errors.As(err, &argErr), "used %d", used)
		s.Equal("used size", argErr.Argument)
	}
}

func (s *LibrarySuite) TestExchange_Result() {
	lib := s.load(testutil.ExchangeModule{})

	res, err := lib.Exchange(s.ctx, make([]byte, 64), host.WithUsedSize(10))
	s.Require().NoError(err)
	s.Equal(entities.ExchangeResult{
		Written:  len(testutil.InPlaceMessage),
		Capacity: 64,
		UsedSize: 10,
		Revision: entities.Revision2,
	}, res)
	s.True(res.Wrote())
}

func (s *LibrarySuite) TestQueryMode_Emulated() {
	lib := s.load(testutil.ExchangeModule{})
	buf := testutil.Filled(64, 'x')

	res, err := lib.Exchange(s.ctx, buf, host.WithMutation(false))
	s.Require().NoError(err)
	s.True(res.Query)
	s.False(res.Wrote())
	s.Equal(len(testutil.InPlaceMessage), res.Written)
	s.Equal(testutil.Filled(64, 'x'), buf)

	small := testutil.Filled(4, 'x')
	res, err = lib.Exchange(s.ctx, small, host.WithMutation(false))
	s.Require().NoError(err)
	s.Zero(res.Written)
}

func (s *LibrarySuite) TestQueryMode_Revision4() {
	lib := s.load(testutil.ExchangeModule{Revision: 4, Advertise: true})
	buf := testutil.Filled(64, 'x')

	n, err := lib.ExchangeInPlace(s.ctx, buf, host.WithMutation(false))
	s.Require().NoError(err)
	s.Equal(len(testutil.InPlaceMessage), n)
	s.Equal(testutil.Filled(64, 'x'), buf)

	n, err = lib.ExchangeInPlace(s.ctx, buf)
	s.Require().NoError(err)
	testutil.AssertWritten(s.T(), testutil.InPlaceMessage, buf, n)
}

func (s *LibrarySuite) TestContractViolation() {
	lib := s.load(testutil.ExchangeModule{Overflow: true})

	_, err := lib.ExchangeInPlace(s.ctx, make([]byte, 16))
	var violation *derrors.ContractViolationError
	s.Require().True(errors.As(err, &violation))
	s.Equal(uint64(17), violation.Written)
	s.Equal(16, violation.Capacity)
}

func (s *LibrarySuite) TestUnloadTwice() {
	lib := s.load(testutil.ExchangeModule{})

	s.Require().NoError(lib.Unload(s.ctx))
	s.False(lib.Loaded())

	var notLoaded *derrors.NotLoadedError
	s.True(errors.As(lib.Unload(s.ctx), &notLoaded))

	_, err := lib.ExchangeInPlace(s.ctx, make([]byte, 64))
	s.True(errors.As(err, &notLoaded))

	_, err = lib.ExchangeByValue(s.ctx, []byte("test"))
	s.True(errors.As(err, &notLoaded))
}

func (s *LibrarySuite) TestExchangeByValue() {
	lib := s.load(testutil.ExchangeModule{Legacy: true})

	out, err := lib.ExchangeByValue(s.ctx, []byte("test"))
	s.Require().NoError(err)
	s.Equal(testutil.LegacyPrefix+"test\x00", string(out))
	s.True(strings.HasSuffix(strings.TrimRight(string(out), "\x00"), "test"))

	// The guest heap is rewound once everything is released, so a second call
	// succeeding with the same output shows the first response was released.
	again, err := lib.ExchangeByValue(s.ctx, []byte("test"))
	s.Require().NoError(err)
	s.Equal(out, again)
}

func (s *LibrarySuite) TestExchangeByValue_Null() {
	lib := s.load(testutil.ExchangeModule{Legacy: true, NullLegacy: true})

	_, err := lib.ExchangeByValue(s.ctx, []byte("test"))
	var nullErr *derrors.NullResultError
	s.Require().True(errors.As(err, &nullErr))
	s.Equal("exchange", nullErr.Symbol)
}

func (s *LibrarySuite) TestExchangeByValue_MissingSymbol() {
	lib := s.load(testutil.ExchangeModule{})

	_, err := lib.ExchangeByValue(s.ctx, []byte("test"))
	var symErr *derrors.SymbolNotFoundError
	s.True(errors.As(err, &symErr))
}

func (s *LibrarySuite) TestBorrow() {
	lib := s.load(testutil.ExchangeModule{Legacy: true})

	fb, err := lib.Borrow(s.ctx, []byte("test"))
	s.Require().NoError(err)
	s.Equal(len(testutil.LegacyPrefix)+len("test")+1, fb.Len())
	s.Equal(testutil.LegacyPrefix+"test\x00", string(fb.Bytes()))

	s.Require().NoError(fb.Release(s.ctx))
	s.True(fb.Released())
	s.Nil(fb.Bytes())
	s.Zero(fb.Len())
	s.NoError(fb.Release(s.ctx))
}

func (s *LibrarySuite) TestConcurrentExchanges() {
	lib := s.load(testutil.ExchangeModule{})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 64)
			n, err := lib.ExchangeInPlace(s.ctx, buf)
			if err == nil && string(buf[:n]) != testutil.InPlaceMessage {
				err = errors.New("unexpected output " + string(buf[:n]))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
}

func TestLibrarySuite(t *testing.T) {
	suite.Run(t, new(LibrarySuite))
}

func TestBorrow_ReleasedOnceAcrossUnload(t *testing.T) {
	ctx := context.Background()
	mod := &fakeModule{response: []byte("echo:")}
	lib, err := host.NewLoader(host.WithOpener(entities.FormatNative, &fakeOpener{module: mod})).Load(ctx, "libdlib.so")
	require.NoError(t, err)

	fb, err := lib.Borrow(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "echo:x", string(fb.Bytes()))

	require.NoError(t, lib.Unload(ctx))
	assert.Equal(t, int32(1), mod.released.Load())
	assert.True(t, fb.Released())

	require.NoError(t, fb.Release(ctx))
	assert.Equal(t, int32(1), mod.released.Load())
}

func TestExchangeByValue_ReleasesOnce(t *testing.T) {
	ctx := context.Background()
	mod := &fakeModule{response: []byte("echo:")}
	lib, err := host.NewLoader(host.WithOpener(entities.FormatNative, &fakeOpener{module: mod})).Load(ctx, "libdlib.so")
	require.NoError(t, err)
	defer func() { _ = lib.Unload(ctx) }()

	out, err := lib.ExchangeByValue(ctx, []byte("test"))
	require.NoError(t, err)
	assert.Equal(t, "echo:test", string(out))
	assert.Equal(t, int32(1), mod.released.Load())
}

func TestExchangeByValue_NullNotReleased(t *testing.T) {
	ctx := context.Background()
	mod := &fakeModule{}
	lib, err := host.NewLoader(host.WithOpener(entities.FormatNative, &fakeOpener{module: mod})).Load(ctx, "libdlib.so")
	require.NoError(t, err)
	defer func() { _ = lib.Unload(ctx) }()

	_, err = lib.ExchangeByValue(ctx, []byte("test"))
	var nullErr *derrors.NullResultError
	require.True(t, errors.As(err, &nullErr))
	assert.Zero(t, mod.released.Load())
}

func TestUnload_CloseErrorStillUnloads(t *testing.T) {
	ctx := context.Background()
	mod := &fakeModule{closeErr: errors.New("dlclose failed")}
	lib, err := host.NewLoader(host.WithOpener(entities.FormatNative, &fakeOpener{module: mod})).Load(ctx, "libdlib.so")
	require.NoError(t, err)

	err = lib.Unload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlclose failed")
	assert.False(t, lib.Loaded())

	var notLoaded *derrors.NotLoadedError
	assert.True(t, errors.As(lib.Unload(ctx), &notLoaded))
	assert.Equal(t, 1, mod.closeCount())
}

func TestQueryMode_EmulationPassesRevision(t *testing.T) {
	ctx := context.Background()
	mod := &fakeModule{}
	lib, err := host.NewLoader(
		host.WithOpener(entities.FormatNative, &fakeOpener{module: mod}),
		host.WithRevision(entities.Revision3),
	).Load(ctx, "libdlib.so")
	require.NoError(t, err)
	defer func() { _ = lib.Unload(ctx) }()

	buf := testutil.Filled(8, 'x')
	n, err := lib.ExchangeInPlace(ctx, buf, host.WithMutation(false))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, testutil.Filled(8, 'x'), buf)
	assert.Equal(t, []entities.Revision{entities.Revision3}, mod.calls)
}
