// Package telemetry defines the wire frames and signal types carried by the
// stream. The protocol is a closed tagged union keyed on the "type" field;
// DecodeFrame performs exhaustive matching with an explicit Unrecognized
// variant rather than silent fallthrough.
package telemetry

// SignalGroup identifies a family of related signals sharing one upstream
// acquisition device.
type SignalGroup string

const (
	GroupCardiac SignalGroup = "cardiac"
	GroupEEG     SignalGroup = "eeg"
	GroupCamera  SignalGroup = "camera"
	GroupUnity   SignalGroup = "unity"
	GroupSensors SignalGroup = "sensors"
)

// KnownGroups lists every signal group the router accepts.
var KnownGroups = []SignalGroup{
	GroupCardiac,
	GroupEEG,
	GroupCamera,
	GroupUnity,
	GroupSensors,
}

// Valid reports whether the group is one the router accepts. Updates for
// unknown groups are ignored without error.
func (g SignalGroup) Valid() bool {
	switch g {
	case GroupCardiac, GroupEEG, GroupCamera, GroupUnity, GroupSensors:
		return true
	default:
		return false
	}
}

func (g SignalGroup) String() string {
	return string(g)
}

// ChannelKey addresses one (group, name) stream of values, e.g.
// (cardiac, ecg) or (sensors, alcohol_level).
type ChannelKey struct {
	Group SignalGroup `json:"group"`
	Name  string      `json:"name"`
}

func (k ChannelKey) String() string {
	return string(k.Group) + "." + k.Name
}
