package host

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/reglet-dev/dylib-host/domain/entities"
)

const metricsNamespace = "dylib_host"

// Exchange modes used as metric labels.
const (
	exchangeModeInPlace = "inplace"
	exchangeModeQuery   = "query"
	exchangeModeByValue = "byvalue"
)

// Exchange results used as metric labels.
const (
	resultOK    = "ok"
	resultEmpty = "empty"
	resultError = "error"
)

// Metrics records loads and exchanges as Prometheus collectors and OpenTelemetry
// instruments. A nil *Metrics records nothing.
type Metrics struct {
	loads     *prometheus.CounterVec
	exchanges *prometheus.CounterVec
	bytes     *prometheus.HistogramVec
	loaded    prometheus.Gauge

	exchangeCounter metric.Int64Counter
	bytesHistogram  metric.Int64Histogram
}

type metricsConfig struct {
	meter metric.Meter
}

// MetricsOption configures Metrics.
type MetricsOption func(*metricsConfig)

// WithMeter sets the OpenTelemetry meter. Defaults to the global provider.
func WithMeter(m metric.Meter) MetricsOption {
	return func(c *metricsConfig) {
		c.meter = m
	}
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) (*Metrics, error) {
	cfg := metricsConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter(tracerName)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loads_total",
			Help:      "Library load attempts by format and result.",
		}, []string{"format", "result"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exchanges_total",
			Help:      "Exchanges by mode and result.",
		}, []string{"mode", "result"}),
		bytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "exchange_bytes",
			Help:      "Bytes reported by successful exchanges.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}, []string{"mode"}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "libraries_loaded",
			Help:      "Libraries currently loaded.",
		}),
	}

	for _, c := range []prometheus.Collector{m.loads, m.exchanges, m.bytes, m.loaded} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	var err error
	m.exchangeCounter, err = cfg.meter.Int64Counter("dylib.exchanges",
		metric.WithDescription("Exchanges by mode and result."))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange counter: %w", err)
	}
	m.bytesHistogram, err = cfg.meter.Int64Histogram("dylib.exchange.bytes",
		metric.WithDescription("Bytes reported by successful exchanges."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange histogram: %w", err)
	}
	return m, nil
}

func (m *Metrics) observeLoad(format entities.Format, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.loads.WithLabelValues(string(format), result).Inc()
}

func (m *Metrics) observeExchange(ctx context.Context, mode string, n int, err error) {
	if m == nil {
		return
	}
	result := resultOK
	switch {
	case err != nil:
		result = resultError
	case n == 0:
		result = resultEmpty
	}
	m.exchanges.WithLabelValues(mode, result).Inc()

	attrs := metric.WithAttributes(attribute.String("mode", mode), attribute.String("result", result))
	m.exchangeCounter.Add(ctx, 1, attrs)
	if result == resultOK {
		m.bytes.WithLabelValues(mode).Observe(float64(n))
		m.bytesHistogram.Record(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
	}
}

func (m *Metrics) libraryLoaded() {
	if m == nil {
		return
	}
	m.loaded.Inc()
}

func (m *Metrics) libraryUnloaded() {
	if m == nil {
		return
	}
	m.loaded.Dec()
}
