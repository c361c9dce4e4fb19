package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics for the ingestion pipeline
type Metrics struct {
	// Stream metrics
	StreamConnected   prometheus.Gauge
	StreamReconnects  prometheus.Counter
	FramesReceived    *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	ParseErrors       prometheus.Counter
	SignalUpdates     *prometheus.CounterVec
	AnomaliesRecorded *prometheus.CounterVec
	RoutingDuration   *prometheus.HistogramVec

	// Component health
	HealthCheckStatus *prometheus.GaugeVec

	// Fan-out metrics
	NATSConnected prometheus.Gauge
	NATSPublished *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		StreamConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "controlroom",
				Subsystem: "stream",
				Name:      "connected",
				Help:      "Stream connection status (0=disconnected, 1=connected)",
			},
		),

		StreamReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "stream",
				Name:      "reconnects_total",
				Help:      "Total number of reconnection attempts",
			},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total number of frames received, by frame type",
			},
			[]string{"type"},
		),

		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "frames",
				Name:      "dropped_total",
				Help:      "Total number of frames dropped, by reason",
			},
			[]string{"reason"},
		),

		ParseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "frames",
				Name:      "parse_errors_total",
				Help:      "Total number of frames that failed to decode",
			},
		),

		SignalUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "signals",
				Name:      "updates_total",
				Help:      "Total number of signal updates applied, by signal group",
			},
			[]string{"group"},
		),

		AnomaliesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "anomalies",
				Name:      "recorded_total",
				Help:      "Total number of anomalies pushed to the feed, by severity",
			},
			[]string{"severity"},
		),

		RoutingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "controlroom",
				Subsystem: "routing",
				Name:      "duration_seconds",
				Help:      "Frame routing duration in seconds",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
			},
			[]string{"type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "controlroom",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "controlroom",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS mirror connection status (0=disconnected, 1=connected)",
			},
		),

		NATSPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "nats",
				Name:      "published_total",
				Help:      "Total number of messages mirrored to NATS, by subject",
			},
			[]string{"subject"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "controlroom",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),
	}
}

// RecordStreamConnected updates the stream connection gauge
func (c *Metrics) RecordStreamConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.StreamConnected.Set(value)
}

// RecordReconnect increments the reconnection counter
func (c *Metrics) RecordReconnect() {
	c.StreamReconnects.Inc()
}

// RecordFrameReceived increments the received frame counter
func (c *Metrics) RecordFrameReceived(frameType string) {
	c.FramesReceived.WithLabelValues(frameType).Inc()
}

// RecordFrameDropped increments the dropped frame counter
func (c *Metrics) RecordFrameDropped(reason string) {
	c.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordParseError increments the parse error counter
func (c *Metrics) RecordParseError() {
	c.ParseErrors.Inc()
}

// RecordSignalUpdate increments the applied signal update counter
func (c *Metrics) RecordSignalUpdate(group string) {
	c.SignalUpdates.WithLabelValues(group).Inc()
}

// RecordAnomaly increments the anomaly counter
func (c *Metrics) RecordAnomaly(severity string) {
	c.AnomaliesRecorded.WithLabelValues(severity).Inc()
}

// RecordRoutingDuration records frame routing time
func (c *Metrics) RecordRoutingDuration(frameType string, duration time.Duration) {
	c.RoutingDuration.WithLabelValues(frameType).Observe(duration.Seconds())
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordNATSStatus updates NATS mirror connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSPublished increments the mirrored message counter
func (c *Metrics) RecordNATSPublished(subject string) {
	c.NATSPublished.WithLabelValues(subject).Inc()
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
