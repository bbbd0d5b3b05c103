package host

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/dylib-host/domain/entities"
	"github.com/reglet-dev/dylib-host/internal/testutil"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeLoad(entities.FormatWasm, nil)
		m.observeExchange(context.Background(), exchangeModeInPlace, 10, nil)
		m.libraryLoaded()
		m.libraryUnloaded()
	})
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	var already prometheus.AlreadyRegisteredError
	assert.True(t, errors.As(err, &already))
}

func TestMetrics_RecordedByLibrary(t *testing.T) {
	ctx := context.Background()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	loader := NewLoader(WithMetrics(m))
	lib, err := loader.Load(ctx, testutil.WriteModule(t, testutil.ExchangeModule{}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, m.loads.WithLabelValues("wasm", resultOK)))
	assert.Equal(t, 1.0, gaugeValue(t, m.loaded))

	_, err = lib.ExchangeInPlace(ctx, make([]byte, 64))
	require.NoError(t, err)
	_, err = lib.ExchangeInPlace(ctx, make([]byte, 4))
	require.NoError(t, err)
	_, err = lib.ExchangeInPlace(ctx, make([]byte, 64), WithMutation(false))
	require.NoError(t, err)
	_, err = lib.ExchangeByValue(ctx, []byte("test"))
	require.Error(t, err)

	assert.Equal(t, 1.0, counterValue(t, m.exchanges.WithLabelValues(exchangeModeInPlace, resultOK)))
	assert.Equal(t, 1.0, counterValue(t, m.exchanges.WithLabelValues(exchangeModeInPlace, resultEmpty)))
	assert.Equal(t, 1.0, counterValue(t, m.exchanges.WithLabelValues(exchangeModeQuery, resultOK)))
	assert.Equal(t, 1.0, counterValue(t, m.exchanges.WithLabelValues(exchangeModeByValue, resultError)))

	require.NoError(t, lib.Unload(ctx))
	assert.Equal(t, 0.0, gaugeValue(t, m.loaded))

	_, err = loader.Load(ctx, "/nonexistent/dir/dlib.wasm")
	require.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, m.loads.WithLabelValues("wasm", resultError)))
}

func TestNewExchangeConfig(t *testing.T) {
	cfg := newExchangeConfig(64, nil)
	assert.Equal(t, 64, cfg.used)
	assert.True(t, cfg.allowMutation)

	cfg = newExchangeConfig(64, []ExchangeOption{WithUsedSize(0), WithMutation(false)})
	assert.Equal(t, 0, cfg.used)
	assert.False(t, cfg.allowMutation)
}
