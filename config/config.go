// Package config loads and validates the session configuration: the stream
// endpoint, the control surface, the optional NATS mirror, and the per-channel
// retention table. Configuration comes from defaults, an optional JSON file,
// and CONTROLROOM_* environment overrides, applied in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Martiniu70/control-room-sub000/errors"
)

const envPrefix = "CONTROLROOM"

// Config is the complete application configuration.
type Config struct {
	Stream  StreamConfig  `json:"stream"`
	Control ControlConfig `json:"control"`
	NATS    NATSConfig    `json:"nats"`
	Server  ServerConfig  `json:"server"`
	Session SessionConfig `json:"session"`
}

// StreamConfig defines the telemetry stream connection.
type StreamConfig struct {
	URL                  string        `json:"url"`
	ReconnectDelay       time.Duration `json:"reconnect_delay"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `json:"handshake_timeout"`
}

// ControlConfig defines the signal control REST surface.
type ControlConfig struct {
	BaseURL         string        `json:"base_url"`
	StatusTimeout   time.Duration `json:"status_timeout"`
	MutationTimeout time.Duration `json:"mutation_timeout"`
	MaxRetries      int           `json:"max_retries"`
}

// NATSConfig defines the optional fan-out mirror connection.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URL           string        `json:"url,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	SubjectPrefix string        `json:"subject_prefix,omitempty"`
}

// ServerConfig defines the observability HTTP server.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// SessionConfig defines session-level tuning.
type SessionConfig struct {
	QueueSize       int `json:"queue_size"`
	AnomalyFeedSize int `json:"anomaly_feed_size"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:                  "ws://localhost:8080/api/ws",
			ReconnectDelay:       3 * time.Second,
			MaxReconnectAttempts: 5,
			HandshakeTimeout:     45 * time.Second,
		},
		Control: ControlConfig{
			BaseURL:         "http://localhost:8080/api/signals",
			StatusTimeout:   5 * time.Second,
			MutationTimeout: 10 * time.Second,
			MaxRetries:      2,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			SubjectPrefix: "telemetry",
		},
		Server: ServerConfig{
			Addr: ":9090",
		},
		Session: SessionConfig{
			QueueSize:       1024,
			AnomalyFeedSize: 10,
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment overrides. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Stream.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "stream.url required")
	}
	if c.Stream.ReconnectDelay <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "stream.reconnect_delay must be positive")
	}
	if c.Stream.MaxReconnectAttempts <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "stream.max_reconnect_attempts must be positive")
	}
	if c.Control.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "control.base_url required")
	}
	if c.Control.MaxRetries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "control.max_retries must not be negative")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "nats.url required when nats is enabled")
	}
	if c.Session.QueueSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "session.queue_size must be positive")
	}
	return nil
}

// applyEnvOverrides applies CONTROLROOM_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_STREAM_URL"); val != "" {
		cfg.Stream.URL = val
	}
	if val := os.Getenv(envPrefix + "_CONTROL_URL"); val != "" {
		cfg.Control.BaseURL = val
	}
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(envPrefix + "_NATS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.NATS.Enabled = enabled
		}
	}
	if val := os.Getenv(envPrefix + "_SERVER_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
}

// UnmarshalJSON accepts duration fields as Go duration strings ("3s") or raw
// nanosecond numbers.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		Stream struct {
			URL                  string `json:"url"`
			ReconnectDelay       any    `json:"reconnect_delay"`
			MaxReconnectAttempts int    `json:"max_reconnect_attempts"`
			HandshakeTimeout     any    `json:"handshake_timeout"`
		} `json:"stream"`
		Control struct {
			BaseURL         string `json:"base_url"`
			StatusTimeout   any    `json:"status_timeout"`
			MutationTimeout any    `json:"mutation_timeout"`
			MaxRetries      *int   `json:"max_retries"`
		} `json:"control"`
		NATS struct {
			Enabled       *bool  `json:"enabled"`
			URL           string `json:"url"`
			MaxReconnects *int   `json:"max_reconnects"`
			ReconnectWait any    `json:"reconnect_wait"`
			SubjectPrefix string `json:"subject_prefix"`
		} `json:"nats"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if aux.Stream.URL != "" {
		c.Stream.URL = aux.Stream.URL
	}
	if aux.Stream.MaxReconnectAttempts != 0 {
		c.Stream.MaxReconnectAttempts = aux.Stream.MaxReconnectAttempts
	}
	if err := setDuration(&c.Stream.ReconnectDelay, aux.Stream.ReconnectDelay); err != nil {
		return err
	}
	if err := setDuration(&c.Stream.HandshakeTimeout, aux.Stream.HandshakeTimeout); err != nil {
		return err
	}

	if aux.Control.BaseURL != "" {
		c.Control.BaseURL = aux.Control.BaseURL
	}
	if aux.Control.MaxRetries != nil {
		c.Control.MaxRetries = *aux.Control.MaxRetries
	}
	if err := setDuration(&c.Control.StatusTimeout, aux.Control.StatusTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.Control.MutationTimeout, aux.Control.MutationTimeout); err != nil {
		return err
	}

	if aux.NATS.Enabled != nil {
		c.NATS.Enabled = *aux.NATS.Enabled
	}
	if aux.NATS.URL != "" {
		c.NATS.URL = aux.NATS.URL
	}
	if aux.NATS.MaxReconnects != nil {
		c.NATS.MaxReconnects = *aux.NATS.MaxReconnects
	}
	if aux.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = aux.NATS.SubjectPrefix
	}
	if err := setDuration(&c.NATS.ReconnectWait, aux.NATS.ReconnectWait); err != nil {
		return err
	}

	return nil
}

// setDuration assigns a duration from a JSON value that may be a duration
// string or a nanosecond number. A nil value leaves the target unchanged.
func setDuration(dst *time.Duration, v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*dst = d
	case float64:
		*dst = time.Duration(val)
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// String returns an indented JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
