package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martiniu70/control-room-sub000/telemetry"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, 5, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Control.StatusTimeout)
	assert.Equal(t, 10*time.Second, cfg.Control.MutationTimeout)
	assert.Equal(t, 2, cfg.Control.MaxRetries)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, 1024, cfg.Session.QueueSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"stream": {
			"url": "ws://telemetry:9000/api/ws",
			"reconnect_delay": "1s"
		},
		"nats": {
			"enabled": true,
			"url": "nats://broker:4222"
		}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://telemetry:9000/api/ws", cfg.Stream.URL)
	assert.Equal(t, time.Second, cfg.Stream.ReconnectDelay)
	// Untouched fields keep their defaults
	assert.Equal(t, 5, cfg.Stream.MaxReconnectAttempts)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "telemetry", cfg.NATS.SubjectPrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Stream.URL, cfg.Stream.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONTROLROOM_STREAM_URL", "ws://env-host/api/ws")
	t.Setenv("CONTROLROOM_NATS_ENABLED", "true")
	t.Setenv("CONTROLROOM_SERVER_ADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://env-host/api/ws", cfg.Stream.URL)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing stream url", func(c *Config) { c.Stream.URL = "" }},
		{"zero reconnect delay", func(c *Config) { c.Stream.ReconnectDelay = 0 }},
		{"zero attempts", func(c *Config) { c.Stream.MaxReconnectAttempts = 0 }},
		{"missing control url", func(c *Config) { c.Control.BaseURL = "" }},
		{"negative retries", func(c *Config) { c.Control.MaxRetries = -1 }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"zero queue size", func(c *Config) { c.Session.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultChannels(t *testing.T) {
	channels := DefaultChannels()

	ecg, ok := channels[telemetry.ChannelKey{Group: telemetry.GroupCardiac, Name: "ecg"}]
	require.True(t, ok)
	assert.Equal(t, KindSeries, ecg.Kind)
	assert.Equal(t, 1000.0, ecg.Window.SampleRate)
	assert.Equal(t, 10, ecg.Window.Downsample)
	assert.NoError(t, ecg.Window.Validate())

	eeg, ok := channels[telemetry.ChannelKey{Group: telemetry.GroupEEG, Name: "eegRaw"}]
	require.True(t, ok)
	assert.Equal(t, KindMultiSeries, eeg.Kind)

	face, ok := channels[telemetry.ChannelKey{Group: telemetry.GroupCamera, Name: "faceLandmarks"}]
	require.True(t, ok)
	assert.Equal(t, KindLatestOnly, face.Kind)

	// Every series-bearing channel has a valid window config
	for key, spec := range channels {
		if spec.Kind == KindLatestOnly {
			continue
		}
		assert.NoError(t, spec.Window.Validate(), key.String())
	}
}
