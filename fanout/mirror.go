// Package fanout republishes accepted telemetry onto NATS for downstream
// consumers. Mirroring is best effort and at-most-once, matching the stream's
// own delivery contract; a nil connection disables it entirely.
package fanout

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/errors"
	"github.com/Martiniu70/control-room-sub000/metric"
	"github.com/Martiniu70/control-room-sub000/telemetry"
)

// Dial connects to NATS with the mirror's reconnect settings. Returns nil
// without error when the mirror is disabled.
func Dial(cfg config.NATSConfig, logger *slog.Logger, metrics *metric.Metrics) (*nats.Conn, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("control-room-fanout"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
			if metrics != nil {
				metrics.RecordNATSStatus(false)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			if metrics != nil {
				metrics.RecordNATSStatus(true)
			}
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "fanout", "Dial", "nats connect")
	}
	if metrics != nil {
		metrics.RecordNATSStatus(true)
	}
	return conn, nil
}

// Mirror publishes signal updates and anomalies to NATS subjects
// "<prefix>.<group>.<name>" and "<prefix>.anomaly.<group>".
type Mirror struct {
	conn    *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewMirror creates a mirror over an established connection. A nil conn
// yields a disabled mirror whose publish methods are no-ops.
func NewMirror(conn *nats.Conn, prefix string, logger *slog.Logger, metrics *metric.Metrics) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "telemetry"
	}
	return &Mirror{
		conn:    conn,
		prefix:  prefix,
		logger:  logger.With("component", "fanout"),
		metrics: metrics,
	}
}

// Enabled reports whether the mirror has a live connection.
func (m *Mirror) Enabled() bool {
	return m != nil && m.conn != nil
}

// PublishSignal mirrors one accepted signal update. Failures are logged and
// dropped; the ingestion path never blocks on the mirror.
func (m *Mirror) PublishSignal(update *telemetry.SignalUpdate) {
	if !m.Enabled() {
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", m.prefix, update.SignalType, update.DataType)
	m.publish(subject, update)
}

// PublishAnomaly mirrors one anomaly alert.
func (m *Mirror) PublishAnomaly(alert *telemetry.AnomalyAlert) {
	if !m.Enabled() {
		return
	}

	subject := fmt.Sprintf("%s.anomaly.%s", m.prefix, alert.SignalType)
	m.publish(subject, alert)
}

func (m *Mirror) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("mirror encode failed", "subject", subject, "error", err)
		return
	}

	if err := m.conn.Publish(subject, data); err != nil {
		m.logger.Warn("mirror publish failed", "subject", subject, "error", err)
		if m.metrics != nil {
			m.metrics.RecordError("fanout", "publish_error")
		}
		return
	}

	if m.metrics != nil {
		m.metrics.RecordNATSPublished(subject)
	}
}

// Close drains and closes the connection. Safe on a disabled mirror.
func (m *Mirror) Close(timeout time.Duration) {
	if !m.Enabled() {
		return
	}

	done := make(chan struct{})
	go func() {
		_ = m.conn.Drain()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		m.conn.Close()
	}
	if m.metrics != nil {
		m.metrics.RecordNATSStatus(false)
	}
}
