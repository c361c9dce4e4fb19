// Package stream owns the persistent WebSocket connection to the telemetry
// server and its reconnection state machine.
//
// States: Idle → Connecting → Connected → (on close) → Reconnecting →
// Connecting → … → Failed. Reconnection uses a fixed delay and a consecutive
// attempt cap; Failed is terminal until an explicit Connect call resets the
// counter. Messages in flight during a drop are lost; there is no replay.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Martiniu70/control-room-sub000/component"
	"github.com/Martiniu70/control-room-sub000/errors"
	"github.com/Martiniu70/control-room-sub000/metric"
)

// Phase is the connection lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionState is the externally visible connection state. Invariant:
// Connected and Reconnecting are never both true.
type ConnectionState struct {
	Phase        Phase  `json:"phase"`
	Connected    bool   `json:"connected"`
	Reconnecting bool   `json:"reconnecting"`
	Error        string `json:"error,omitempty"`
	Attempts     int    `json:"attempts"`
}

// Config holds connection manager settings.
type Config struct {
	// URL of the stream endpoint, e.g. "ws://host:port/api/ws".
	// Reconnection reuses the same URL.
	URL string

	// ReconnectDelay is the fixed delay between reconnect attempts.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts caps consecutive attempts before the Failed state.
	MaxReconnectAttempts int

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the standard connection settings.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     45 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "stream", "Validate", "url required")
	}
	if c.ReconnectDelay <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "stream", "Validate", "reconnect delay must be positive")
	}
	if c.MaxReconnectAttempts <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "stream", "Validate", "max reconnect attempts must be positive")
	}
	return nil
}

// Callbacks are installed once per Manager and invoked from the transport
// goroutine. OnMessage must not block; hand the frame to a queue and return.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(reason string)
	OnError   func(err error)
}

// Manager owns one logical stream connection.
type Manager struct {
	name    string
	cfg     Config
	cb      Callbacks
	logger  *slog.Logger
	metrics *metric.Metrics
	dialer  *websocket.Dialer

	mu             sync.Mutex
	phase          Phase
	lastErr        string
	attempts       int
	conn           *websocket.Conn
	reconnectTimer *time.Timer

	// connCtx spans one Connect..Disconnect cycle; redials reuse it so a
	// caller cancellation also stops pending reconnects.
	connCtx context.Context
	cancel  context.CancelFunc

	// gen invalidates stale timer fires and read-loop exits after a
	// Disconnect or a newer connection superseded them.
	gen uint64

	startTime  time.Time
	errorCount int
	readerWG   sync.WaitGroup
}

var (
	_ component.LifecycleComponent = (*Manager)(nil)
	_ component.Discoverable       = (*Manager)(nil)
)

// NewManager creates a connection manager. The metrics registry is optional.
func NewManager(name string, cfg Config, cb Callbacks, logger *slog.Logger, metrics *metric.Metrics) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		name:    name,
		cfg:     cfg,
		cb:      cb,
		logger:  logger.With("component", name),
		metrics: metrics,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		phase: PhaseIdle,
	}, nil
}

// Connect opens the transport. No-op if already connected. A manual Connect
// resets the attempt counter, so it also recovers from the Failed state.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.phase == PhaseConnected {
		m.mu.Unlock()
		return nil
	}

	m.stopTimerLocked()
	m.attempts = 0
	m.gen++
	gen := m.gen

	connCtx, cancel := context.WithCancel(ctx)
	if m.cancel != nil {
		m.cancel()
	}
	m.connCtx = connCtx
	m.cancel = cancel

	m.phase = PhaseConnecting
	m.lastErr = ""
	m.mu.Unlock()

	go m.dial(connCtx, gen)
	return nil
}

// Disconnect cancels any pending reconnect timer, closes the transport, and
// resets the state to idle. Idempotent. Retained buffers downstream are left
// intact; only new data stops arriving.
func (m *Manager) Disconnect() {
	m.mu.Lock()

	m.stopTimerLocked()
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	conn := m.conn
	m.conn = nil
	m.phase = PhaseIdle
	m.lastErr = ""
	m.attempts = 0
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if m.metrics != nil {
		m.metrics.RecordStreamConnected(false)
	}
}

// State returns a snapshot of the connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ConnectionState{
		Phase:        m.phase,
		Connected:    m.phase == PhaseConnected,
		Reconnecting: m.phase == PhaseConnecting || m.phase == PhaseReconnecting,
		Error:        m.lastErr,
		Attempts:     m.attempts,
	}
}

// dial opens the transport for generation gen and runs the read loop.
func (m *Manager) dial(ctx context.Context, gen uint64) {
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.logger.Warn("dial failed", "error", err)
		m.trackError()
		m.handleClose(gen, fmt.Sprintf("dial failed: %v", err))
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// Disconnected while dialing
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.phase = PhaseConnected
	m.attempts = 0
	m.lastErr = ""
	m.mu.Unlock()

	m.logger.Info("stream connected", "url", m.cfg.URL)
	if m.metrics != nil {
		m.metrics.RecordStreamConnected(true)
	}
	if m.cb.OnOpen != nil {
		m.cb.OnOpen()
	}

	m.readerWG.Add(1)
	go m.readLoop(ctx, gen, conn)
}

// readLoop delivers messages in transport order until the connection drops.
func (m *Manager) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	defer m.readerWG.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			m.trackError()
			if m.cb.OnError != nil {
				m.cb.OnError(err)
			}
			m.handleClose(gen, fmt.Sprintf("read failed: %v", err))
			return
		}

		if m.cb.OnMessage != nil {
			m.cb.OnMessage(data)
		}
	}
}

// handleClose runs the close transition: record the reason, then either
// schedule a reconnect after the fixed delay or enter the terminal Failed
// state once the attempt cap is reached.
func (m *Manager) handleClose(gen uint64, reason string) {
	m.mu.Lock()

	if gen != m.gen {
		// Superseded by Disconnect or a newer Connect
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.lastErr = reason

	if m.metrics != nil {
		m.metrics.RecordStreamConnected(false)
	}

	m.attempts++
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.phase = PhaseFailed
		m.lastErr = errors.ErrReconnectExhausted.Error()
		m.stopTimerLocked()
		m.mu.Unlock()

		m.logger.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxReconnectAttempts)
		if m.cb.OnClose != nil {
			m.cb.OnClose(reason)
		}
		return
	}

	attempt := m.attempts
	m.phase = PhaseReconnecting

	m.stopTimerLocked()
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.redial(gen)
	})
	m.mu.Unlock()

	m.logger.Warn("stream closed, reconnecting",
		"reason", reason,
		"attempt", attempt,
		"delay", m.cfg.ReconnectDelay,
	)
	if m.metrics != nil {
		m.metrics.RecordReconnect()
	}
	if m.cb.OnClose != nil {
		m.cb.OnClose(reason)
	}
}

// redial fires from the reconnect timer.
func (m *Manager) redial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.phase != PhaseReconnecting {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseConnecting
	ctx := m.connCtx
	m.mu.Unlock()

	go m.dial(ctx, gen)
}

func (m *Manager) stopTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) trackError() {
	m.mu.Lock()
	m.errorCount++
	m.mu.Unlock()
}

// Lifecycle interface implementation

// Initialize validates the configuration.
func (m *Manager) Initialize() error {
	return m.cfg.Validate()
}

// Start opens the connection.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
	return m.Connect(ctx)
}

// Stop disconnects and waits for the read loop to exit.
func (m *Manager) Stop(timeout time.Duration) error {
	m.Disconnect()

	doneCh := make(chan struct{})
	go func() {
		m.readerWG.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"stream", "Stop", "wait for read loop",
		)
	}
}

// Discoverable interface implementation

// Meta returns component metadata.
func (m *Manager) Meta() component.Metadata {
	return component.Metadata{
		Name:        m.name,
		Type:        "stream",
		Description: "WebSocket telemetry stream connection manager",
		Version:     "1.0.0",
	}
}

// Health reports connected as healthy, reconnecting as degraded-but-healthy
// while attempts remain, and Failed as unhealthy.
func (m *Manager) Health() component.HealthStatus {
	state := m.State()

	m.mu.Lock()
	errorCount := m.errorCount
	startTime := m.startTime
	m.mu.Unlock()

	uptime := time.Duration(0)
	if !startTime.IsZero() {
		uptime = time.Since(startTime)
	}

	return component.HealthStatus{
		Healthy:    state.Connected || state.Reconnecting,
		LastCheck:  time.Now(),
		ErrorCount: errorCount,
		LastError:  state.Error,
		Uptime:     uptime,
	}
}

// DataFlow returns flow metrics. The manager does not count messages itself;
// the session tracks frame rates.
func (m *Manager) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
