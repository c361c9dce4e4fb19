package telemetry

import (
	"encoding/json"
	"strings"

	"github.com/Martiniu70/control-room-sub000/errors"
	"github.com/Martiniu70/control-room-sub000/pkg/timestamp"
)

// Frame type discriminants carried in the wire "type" field.
const (
	TypeSignalUpdate          = "signal.update"
	TypeAnomalyAlert          = "anomaly.alert"
	TypeSystemHeartbeat       = "system.heartbeat"
	TypeConnectionEstablished = "connection.established"
)

// Transport-lifecycle suffixes. Frames like "websocket.connected" or
// "zeromq.error" are observed but produce no state change.
var transportSuffixes = []string{".connected", ".error", ".warning", ".heartbeat"}

// Frame is one decoded stream frame. The concrete type is determined by the
// wire discriminant.
type Frame interface {
	FrameType() string
}

// SignalUpdate carries one sample (or batch of samples) for a channel,
// optionally with inline anomaly annotations.
type SignalUpdate struct {
	Type       string      `json:"type"`
	SignalType SignalGroup `json:"signalType"`
	DataType   string      `json:"dataType"`
	Timestamp  int64       `json:"timestamp"`
	Value      any         `json:"value"`
	Quality    float64     `json:"quality,omitempty"`
	Anomalies  []string    `json:"anomalies,omitempty"`
}

func (f *SignalUpdate) FrameType() string { return TypeSignalUpdate }

// Key returns the channel key this update addresses.
func (f *SignalUpdate) Key() ChannelKey {
	return ChannelKey{Group: f.SignalType, Name: f.DataType}
}

// Point builds the immutable SignalPoint for this update.
func (f *SignalUpdate) Point() SignalPoint {
	return SignalPoint{
		Timestamp: f.Timestamp,
		Value:     f.Value,
		Quality:   f.Quality,
	}
}

// Severity tiers for anomaly alerts, lowest first.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Icon returns the display glyph prefixing a formatted anomaly entry.
func (s Severity) Icon() string {
	switch s {
	case SeverityCritical:
		return "\U0001F6A8" // rotating light
	case SeverityWarning:
		return "⚠️" // warning sign
	default:
		return "ℹ️" // information
	}
}

// AnomalyAlert is a discrete severity-tagged event distinct from continuous
// signal values.
type AnomalyAlert struct {
	Type        string      `json:"type"`
	SignalType  SignalGroup `json:"signalType"`
	AnomalyType string      `json:"anomalyType"`
	Severity    Severity    `json:"severity"`
	Message     string      `json:"message"`
	Timestamp   int64       `json:"timestamp"`
	Value       *float64    `json:"value,omitempty"`
	Threshold   *float64    `json:"threshold,omitempty"`
}

func (f *AnomalyAlert) FrameType() string { return TypeAnomalyAlert }

// SystemHeartbeat reports upstream system health. Observed for bookkeeping
// only; produces no store mutation.
type SystemHeartbeat struct {
	Type              string            `json:"type"`
	Timestamp         int64             `json:"timestamp"`
	SystemHealth      string            `json:"systemHealth"`
	SignalStatuses    map[string]string `json:"signalStatuses,omitempty"`
	ActiveConnections int               `json:"activeConnections"`
	Uptime            float64           `json:"uptime"`
}

func (f *SystemHeartbeat) FrameType() string { return TypeSystemHeartbeat }

// ConnectionEstablished is sent by the server once per accepted connection.
type ConnectionEstablished struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"clientId,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (f *ConnectionEstablished) FrameType() string { return TypeConnectionEstablished }

// TransportEvent is a transport-lifecycle frame (e.g. "websocket.connected").
// Observed, no state change.
type TransportEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

func (f *TransportEvent) FrameType() string { return f.Type }

// Unrecognized holds a frame whose discriminant matched nothing known. The
// router drops these with a diagnostic.
type Unrecognized struct {
	Type string `json:"type"`
	Raw  json.RawMessage
}

func (f *Unrecognized) FrameType() string { return f.Type }

// envelope extracts the discriminant and a loosely-typed timestamp before the
// frame-specific decode.
type envelope struct {
	Type      string `json:"type"`
	Timestamp any    `json:"timestamp"`
}

// isTransportEvent reports whether the discriminant is a transport-lifecycle
// frame like "<transport>.connected".
func isTransportEvent(frameType string) bool {
	for _, suffix := range transportSuffixes {
		if strings.HasSuffix(frameType, suffix) {
			return true
		}
	}
	return false
}

// DecodeFrame parses one wire frame. Malformed JSON or a missing discriminant
// is an invalid-frame error; an unknown discriminant is NOT an error and
// decodes to *Unrecognized, leaving the drop decision to the router.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(err, "telemetry", "DecodeFrame", "frame parse")
	}
	if env.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrUnknownFrame, "telemetry", "DecodeFrame", "missing type discriminant")
	}

	ts := timestamp.Parse(env.Timestamp)

	switch env.Type {
	case TypeSignalUpdate:
		var f SignalUpdate
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		f.Timestamp = ts
		return &f, nil

	case TypeAnomalyAlert:
		var f AnomalyAlert
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		f.Timestamp = ts
		return &f, nil

	case TypeSystemHeartbeat:
		var f SystemHeartbeat
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		f.Timestamp = ts
		return &f, nil

	case TypeConnectionEstablished:
		var f ConnectionEstablished
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		f.Timestamp = ts
		return &f, nil
	}

	if isTransportEvent(env.Type) {
		var f TransportEvent
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		f.Timestamp = ts
		return &f, nil
	}

	return &Unrecognized{Type: env.Type, Raw: append([]byte(nil), data...)}, nil
}

// decodeInto unmarshals into a frame struct whose timestamp field is
// overwritten by the caller with the normalized value. The loose "timestamp"
// field would otherwise fail strict int64 decoding for float or string stamps,
// so it is stripped first.
func decodeInto(data []byte, dst any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "telemetry", "DecodeFrame", "frame parse")
	}
	delete(raw, "timestamp")

	cleaned, err := json.Marshal(raw)
	if err != nil {
		return errors.WrapInvalid(err, "telemetry", "DecodeFrame", "frame re-encode")
	}
	if err := json.Unmarshal(cleaned, dst); err != nil {
		return errors.WrapInvalid(err, "telemetry", "DecodeFrame", "frame decode")
	}
	return nil
}
