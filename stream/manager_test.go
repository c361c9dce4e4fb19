package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer is a controllable websocket endpoint.
type testServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	dials atomic.Int32

	// reject refuses the upgrade, simulating an unreachable server
	reject atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.dials.Add(1)
		if ts.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		// Hold the connection open, discarding client frames
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) send(t *testing.T, data string) {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NotEmpty(t, ts.conns)
	conn := ts.conns[len(ts.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (ts *testServer) dropAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		_ = c.Close()
	}
	ts.conns = nil
}

func fastConfig(url string) Config {
	return Config{
		URL:                  url,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManager_ConnectAndReceive(t *testing.T) {
	server := newTestServer(t)

	var opened atomic.Bool
	var received []string
	var mu sync.Mutex

	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{
		OnOpen: func() { opened.Store(true) },
		OnMessage: func(data []byte) {
			mu.Lock()
			received = append(received, string(data))
			mu.Unlock()
		},
	}, nil, nil)
	require.NoError(t, err)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, opened.Load, "connection never opened")

	state := m.State()
	assert.True(t, state.Connected)
	assert.False(t, state.Reconnecting)
	assert.Equal(t, PhaseConnected, state.Phase)
	assert.Empty(t, state.Error)
	assert.Zero(t, state.Attempts)

	server.send(t, "frame-1")
	server.send(t, "frame-2")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, "frames not received")
	mu.Lock()
	assert.Equal(t, []string{"frame-1", "frame-2"}, received)
	mu.Unlock()
}

func TestManager_ConnectIsIdempotentWhenConnected(t *testing.T) {
	server := newTestServer(t)

	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{}, nil, nil)
	require.NoError(t, err)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, func() bool { return m.State().Connected }, "never connected")

	dialsBefore := server.dials.Load()
	require.NoError(t, m.Connect(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, dialsBefore, server.dials.Load())
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	server := newTestServer(t)

	var closes atomic.Int32
	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{
		OnClose: func(string) { closes.Add(1) },
	}, nil, nil)
	require.NoError(t, err)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, func() bool { return m.State().Connected }, "never connected")

	server.dropAll()
	waitFor(t, func() bool { return closes.Load() >= 1 }, "close never observed")
	waitFor(t, func() bool { return m.State().Connected }, "never reconnected")

	// Successful open resets the attempt counter
	assert.Zero(t, m.State().Attempts)
}

func TestManager_FailsAfterAttemptCap(t *testing.T) {
	server := newTestServer(t)
	server.reject.Store(true)

	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{}, nil, nil)
	require.NoError(t, err)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, func() bool { return m.State().Phase == PhaseFailed }, "never failed")

	state := m.State()
	assert.False(t, state.Connected)
	assert.False(t, state.Reconnecting)
	assert.Equal(t, 5, state.Attempts)
	assert.Contains(t, state.Error, "exhausted")

	// Terminal: no further automatic dials
	dialsAtFailure := server.dials.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, dialsAtFailure, server.dials.Load())
}

func TestManager_ManualConnectResetsFailed(t *testing.T) {
	server := newTestServer(t)
	server.reject.Store(true)

	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{}, nil, nil)
	require.NoError(t, err)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, func() bool { return m.State().Phase == PhaseFailed }, "never failed")

	server.reject.Store(false)
	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, func() bool { return m.State().Connected }, "manual reconnect failed")
	assert.Zero(t, m.State().Attempts)
}

func TestManager_DisconnectCancelsPendingReconnect(t *testing.T) {
	server := newTestServer(t)
	server.reject.Store(true)

	cfg := fastConfig(server.url())
	cfg.ReconnectDelay = 200 * time.Millisecond

	m, err := NewManager("stream", cfg, Callbacks{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Connect(context.Background()))
	waitFor(t, func() bool { return m.State().Phase == PhaseReconnecting }, "never entered reconnecting")

	m.Disconnect()
	dialsAtDisconnect := server.dials.Load()

	// The pending timer must not fire a new dial
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, dialsAtDisconnect, server.dials.Load())

	state := m.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.False(t, state.Connected)
	assert.False(t, state.Reconnecting)
	assert.Empty(t, state.Error)

	// Idempotent
	m.Disconnect()
	assert.Equal(t, PhaseIdle, m.State().Phase)
}

func TestManager_InvariantNeverConnectedAndReconnecting(t *testing.T) {
	server := newTestServer(t)

	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{}, nil, nil)
	require.NoError(t, err)
	defer m.Disconnect()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			state := m.State()
			assert.False(t, state.Connected && state.Reconnecting)
			time.Sleep(time.Millisecond)
		}
	}()

	require.NoError(t, m.Connect(context.Background()))
	time.Sleep(50 * time.Millisecond)
	server.dropAll()
	<-done
}

func TestManager_ConfigValidation(t *testing.T) {
	_, err := NewManager("stream", Config{}, Callbacks{}, nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig("ws://localhost/api/ws")
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestManager_StopWaitsForReadLoop(t *testing.T) {
	server := newTestServer(t)

	m, err := NewManager("stream", fastConfig(server.url()), Callbacks{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State().Connected }, "never connected")

	assert.NoError(t, m.Stop(2*time.Second))
	assert.Equal(t, PhaseIdle, m.State().Phase)
}
