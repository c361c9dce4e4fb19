package config

import (
	"time"

	"github.com/Martiniu70/control-room-sub000/telemetry"
	"github.com/Martiniu70/control-room-sub000/window"
)

// ChannelKind selects how a channel's updates are retained.
type ChannelKind int

const (
	// KindSeries feeds a single windowed series (numeric scalars or batches).
	KindSeries ChannelKind = iota

	// KindMultiSeries feeds one windowed series per sub-channel key
	// (EEG raw: one per electrode).
	KindMultiSeries

	// KindLatestOnly keeps just the latest point in the channel store
	// (compound values like faceLandmarks).
	KindLatestOnly
)

// ChannelSpec is the retention specification for one channel.
type ChannelSpec struct {
	Kind   ChannelKind
	Window window.Config
}

// DefaultChannels is the authoritative per-channel table mirroring the
// upstream acquisition devices. Channels absent from the table default to
// latest-only retention.
func DefaultChannels() map[telemetry.ChannelKey]ChannelSpec {
	return map[telemetry.ChannelKey]ChannelSpec{
		{Group: telemetry.GroupCardiac, Name: "ecg"}: {
			Kind: KindSeries,
			Window: window.Config{
				SampleRate:     1000,
				WindowDuration: 10 * time.Second,
				Downsample:     10,
				MaxPoints:      1000,
			},
		},
		{Group: telemetry.GroupCardiac, Name: "hr"}: {
			Kind: KindSeries,
			Window: window.Config{
				SampleRate:     1,
				WindowDuration: 60 * time.Second,
				Downsample:     1,
				MaxPoints:      60,
			},
		},
		{Group: telemetry.GroupEEG, Name: "eegRaw"}: {
			Kind: KindMultiSeries,
			Window: window.Config{
				SampleRate:     250,
				WindowDuration: 5 * time.Second,
				Downsample:     5,
				MaxPoints:      500,
			},
		},
		{Group: telemetry.GroupEEG, Name: "eegBands"}: {
			Kind: KindLatestOnly,
		},
		{Group: telemetry.GroupCamera, Name: "faceLandmarks"}: {
			Kind: KindLatestOnly,
		},
		{Group: telemetry.GroupSensors, Name: "accelerometer"}: {
			Kind: KindSeries,
			Window: window.Config{
				SampleRate:     50,
				WindowDuration: 30 * time.Second,
				Downsample:     2,
				MaxPoints:      1000,
			},
		},
		{Group: telemetry.GroupSensors, Name: "gyroscope"}: {
			Kind: KindSeries,
			Window: window.Config{
				SampleRate:     50,
				WindowDuration: 30 * time.Second,
				Downsample:     2,
				MaxPoints:      1000,
			},
		},
		{Group: telemetry.GroupSensors, Name: "alcohol_level"}: {
			Kind: KindSeries,
			Window: window.Config{
				SampleRate:     0.2,
				WindowDuration: 300 * time.Second,
				Downsample:     1,
				MaxPoints:      100,
			},
		},
		{Group: telemetry.GroupUnity, Name: "car_information"}: {
			Kind: KindSeries,
			Window: window.Config{
				SampleRate:     10,
				WindowDuration: 60 * time.Second,
				Downsample:     1,
				MaxPoints:      1000,
			},
		},
	}
}
