package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})

	err := registry.RegisterCounter("session", "test_counter", counter)
	assert.NoError(t, err)

	// Same key registered twice is rejected
	err = registry.RegisterCounter("session", "test_counter", counter)
	assert.Error(t, err)
}

func TestRegisterGauge_DuplicatePrometheusName(t *testing.T) {
	registry := NewMetricsRegistry()

	gaugeA := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"})
	gaugeB := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"})

	require.NoError(t, registry.RegisterGauge("a", "gauge", gaugeA))

	// Different registry key but identical Prometheus name collides
	err := registry.RegisterGauge("b", "gauge", gaugeB)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_unregister_total",
		Help: "test counter",
	})

	require.NoError(t, registry.RegisterCounter("session", "unregister", counter))

	assert.True(t, registry.Unregister("session", "unregister"))
	assert.False(t, registry.Unregister("session", "unregister"))

	// Re-registration after unregister is allowed
	assert.NoError(t, registry.RegisterCounter("session", "unregister", counter))
}

func TestCoreMetrics_Record(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	// Smoke: the record helpers must not panic on a fresh registry
	core.RecordStreamConnected(true)
	core.RecordReconnect()
	core.RecordFrameReceived("signal.update")
	core.RecordFrameDropped("queue_full")
	core.RecordParseError()
	core.RecordSignalUpdate("cardiac")
	core.RecordAnomaly("warning")
	core.RecordHealthStatus("session", true)
	core.RecordNATSStatus(false)
	core.RecordNATSPublished("telemetry.cardiac.hr")
	core.RecordError("router", "unknown_type")

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
