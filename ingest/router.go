// Package ingest turns the raw frame stream into store and buffer mutations.
// The Router classifies decoded frames; the Session owns the transport, the
// frame queue, and the single processing goroutine that applies effects in
// arrival order.
package ingest

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/metric"
	"github.com/Martiniu70/control-room-sub000/store"
	"github.com/Martiniu70/control-room-sub000/telemetry"
	"github.com/Martiniu70/control-room-sub000/window"
)

// Publisher mirrors accepted updates to an external fan-out. Implementations
// must be best-effort and non-blocking; a nil Publisher disables mirroring.
type Publisher interface {
	PublishSignal(update *telemetry.SignalUpdate)
	PublishAnomaly(alert *telemetry.AnomalyAlert)
}

// HeartbeatInfo is the bookkeeping kept from system.heartbeat frames.
type HeartbeatInfo struct {
	LastSeen          int64   `json:"last_seen"`
	SystemHealth      string  `json:"system_health"`
	ActiveConnections int     `json:"active_connections"`
	Uptime            float64 `json:"uptime"`
}

// Router dispatches decoded frames to the channel store, the windowed
// buffers, and the anomaly feed. All methods are called from the session's
// processing goroutine only.
type Router struct {
	channels  map[telemetry.ChannelKey]config.ChannelSpec
	store     *store.ChannelStore
	feed      *store.AnomalyFeed
	series    map[telemetry.ChannelKey]*window.Series
	multi     map[telemetry.ChannelKey]*window.MultiSeries
	logger    *slog.Logger
	metrics   *metric.Metrics
	publisher Publisher

	// parseLimiter throttles malformed-frame logging so a bad firehose
	// cannot flood the log.
	parseLimiter *rate.Limiter

	// heartbeat is written by the processing goroutine and read by health
	// snapshots from other goroutines.
	hbMu      sync.Mutex
	heartbeat HeartbeatInfo
}

// NewRouter creates a router over the given stores. Series buffers are
// created eagerly from the channel table; metrics and publisher are optional.
func NewRouter(
	channels map[telemetry.ChannelKey]config.ChannelSpec,
	channelStore *store.ChannelStore,
	feed *store.AnomalyFeed,
	logger *slog.Logger,
	metrics *metric.Metrics,
	publisher Publisher,
) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		channels:     channels,
		store:        channelStore,
		feed:         feed,
		series:       make(map[telemetry.ChannelKey]*window.Series),
		multi:        make(map[telemetry.ChannelKey]*window.MultiSeries),
		logger:       logger.With("component", "router"),
		metrics:      metrics,
		publisher:    publisher,
		parseLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}

	for key, spec := range channels {
		switch spec.Kind {
		case config.KindSeries:
			s, err := window.NewSeries(spec.Window)
			if err != nil {
				return nil, err
			}
			r.series[key] = s
		case config.KindMultiSeries:
			m, err := window.NewMultiSeries(spec.Window)
			if err != nil {
				return nil, err
			}
			r.multi[key] = m
		}
	}

	return r, nil
}

// HandleRaw decodes one wire frame and dispatches it. Parse failures drop the
// frame and continue; delivery is at-most-once, best effort.
func (r *Router) HandleRaw(data []byte) {
	start := time.Now()

	frame, err := telemetry.DecodeFrame(data)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordParseError()
			r.metrics.RecordFrameDropped("parse_error")
		}
		if r.parseLimiter.Allow() {
			r.logger.Warn("dropping malformed frame", "error", err)
		}
		return
	}

	frameType := frame.FrameType()
	if r.metrics != nil {
		r.metrics.RecordFrameReceived(frameType)
		defer func() {
			r.metrics.RecordRoutingDuration(frameType, time.Since(start))
		}()
	}

	r.Dispatch(frame)
}

// Dispatch applies one decoded frame's effects.
func (r *Router) Dispatch(frame telemetry.Frame) {
	switch f := frame.(type) {
	case *telemetry.SignalUpdate:
		r.handleSignalUpdate(f)

	case *telemetry.AnomalyAlert:
		r.handleAnomalyAlert(f)

	case *telemetry.SystemHeartbeat:
		r.hbMu.Lock()
		r.heartbeat = HeartbeatInfo{
			LastSeen:          f.Timestamp,
			SystemHealth:      f.SystemHealth,
			ActiveConnections: f.ActiveConnections,
			Uptime:            f.Uptime,
		}
		r.hbMu.Unlock()
		r.logger.Debug("heartbeat",
			"systemHealth", f.SystemHealth,
			"activeConnections", f.ActiveConnections,
		)

	case *telemetry.ConnectionEstablished:
		r.logger.Info("server acknowledged connection", "clientId", f.ClientID)

	case *telemetry.TransportEvent:
		r.logger.Debug("transport event", "type", f.Type, "message", f.Message)

	case *telemetry.Unrecognized:
		if r.metrics != nil {
			r.metrics.RecordFrameDropped("unrecognized")
		}
		r.logger.Warn("dropping unrecognized frame", "type", f.Type)
	}
}

// handleSignalUpdate applies a signal update: latest-point store mutation,
// series append per the channel table, inline anomaly entries, and the
// optional fan-out mirror. Updates for unknown groups are silently ignored.
func (r *Router) handleSignalUpdate(f *telemetry.SignalUpdate) {
	if !f.SignalType.Valid() {
		r.logger.Debug("ignoring update for unknown signal group", "group", f.SignalType)
		return
	}

	key := f.Key()
	point := f.Point()
	r.store.Update(key, point)

	if r.metrics != nil {
		r.metrics.RecordSignalUpdate(string(f.SignalType))
	}

	if s, ok := r.series[key]; ok {
		r.appendSeries(s, point)
	} else if m, ok := r.multi[key]; ok {
		r.appendMulti(m, point)
	}

	for _, msg := range f.Anomalies {
		r.pushAnomaly(f.SignalType, telemetry.SeverityWarning, msg, f.Timestamp)
	}

	if r.publisher != nil {
		r.publisher.PublishSignal(f)
	}
}

// appendSeries feeds one update into a single windowed series. A batch value
// is placed at the update timestamp with per-sample spacing from the channel's
// sample rate; a scalar appends one point.
func (r *Router) appendSeries(s *window.Series, point telemetry.SignalPoint) {
	samples := point.Samples()
	switch len(samples) {
	case 0:
		// Non-numeric payload on a series channel; latest-point store
		// update already happened
	case 1:
		s.AppendPoint(point.Timestamp, samples[0])
	default:
		s.AppendBatch(point.Timestamp, samples)
	}
}

// appendMulti fans a compound value out to per-sub-channel series. The wire
// shape is an object of sub-channel name to sample batch (EEG raw: electrode
// to samples).
func (r *Router) appendMulti(m *window.MultiSeries, point telemetry.SignalPoint) {
	obj, ok := point.Value.(map[string]any)
	if !ok {
		return
	}

	for sub, raw := range obj {
		samples := telemetry.SignalPoint{Value: raw}.Samples()
		if len(samples) == 0 {
			continue
		}
		m.AppendBatch(sub, point.Timestamp, samples)
	}
}

// handleAnomalyAlert pushes a formatted entry unless the severity is the
// lowest tier.
func (r *Router) handleAnomalyAlert(f *telemetry.AnomalyAlert) {
	if f.Severity == telemetry.SeverityInfo {
		return
	}

	r.pushAnomaly(f.SignalType, f.Severity, f.Message, f.Timestamp)

	if r.publisher != nil {
		r.publisher.PublishAnomaly(f)
	}
}

func (r *Router) pushAnomaly(group telemetry.SignalGroup, severity telemetry.Severity, msg string, tsMs int64) {
	r.feed.Push(store.NewAnomalyEntry(group, severity, msg, tsMs))
	if r.metrics != nil {
		r.metrics.RecordAnomaly(string(severity))
	}
}

// Heartbeat returns the latest system heartbeat bookkeeping.
func (r *Router) Heartbeat() HeartbeatInfo {
	r.hbMu.Lock()
	defer r.hbMu.Unlock()
	return r.heartbeat
}

// Series returns the windowed series for a channel, if it is series-bearing.
func (r *Router) Series(key telemetry.ChannelKey) (*window.Series, bool) {
	s, ok := r.series[key]
	return s, ok
}

// MultiSeries returns the per-sub-channel series for a channel, if any.
func (r *Router) MultiSeries(key telemetry.ChannelKey) (*window.MultiSeries, bool) {
	m, ok := r.multi[key]
	return m, ok
}
