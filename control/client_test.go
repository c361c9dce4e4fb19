package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/errors"
)

// controlFixture serves a fake signal control surface.
type controlFixture struct {
	*httptest.Server

	mu       sync.Mutex
	active   map[string]map[string]bool
	requests []string

	failMutations atomic.Int32 // fail this many mutations with 500 before succeeding
}

func newControlFixture(t *testing.T) *controlFixture {
	t.Helper()

	fx := &controlFixture{
		active: map[string]map[string]bool{
			"cardiac": {"hr": true, "ecg": false},
			"eeg":     {"eegRaw": true},
		},
	}

	fx.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		fx.requests = append(fx.requests, r.Method+" "+r.URL.Path)
		fx.mu.Unlock()

		if r.Method == http.MethodGet && r.URL.Path == "/api/signals/components" {
			fx.writeStatus(w)
			return
		}

		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if fx.failMutations.Load() > 0 {
			fx.failMutations.Add(-1)
			http.Error(w, "upstream busy", http.StatusInternalServerError)
			return
		}
		fx.applyMutation(w, r.URL.Path)
	}))
	t.Cleanup(fx.Close)
	return fx
}

func (fx *controlFixture) writeStatus(w http.ResponseWriter) {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"components":{`))
	first := true
	for name, signals := range fx.active {
		if !first {
			w.Write([]byte(","))
		}
		first = false
		w.Write([]byte(`"` + name + `":{"availableSignals":[`))
		avail, act := "", ""
		for sig, on := range signals {
			if avail != "" {
				avail += ","
			}
			avail += `"` + sig + `"`
			if on {
				if act != "" {
					act += ","
				}
				act += `"` + sig + `"`
			}
		}
		w.Write([]byte(avail + `],"activeSignals":[` + act + `],"state":"running"}`))
	}
	w.Write([]byte(`}}`))
}

func (fx *controlFixture) applyMutation(w http.ResponseWriter, path string) {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	switch path {
	case "/api/signals/cardiac/signals/ecg/enable":
		fx.active["cardiac"]["ecg"] = true
	case "/api/signals/cardiac/signals/hr/disable":
		fx.active["cardiac"]["hr"] = false
	case "/api/signals/cardiac/disable-all":
		for sig := range fx.active["cardiac"] {
			fx.active["cardiac"][sig] = false
		}
	case "/api/signals/enable-all":
		for _, signals := range fx.active {
			for sig := range signals {
				signals[sig] = true
			}
		}
	default:
		http.NotFound(w, nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (fx *controlFixture) requestLog() []string {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]string(nil), fx.requests...)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.ControlConfig{
		BaseURL:         baseURL + "/api/signals",
		StatusTimeout:   2 * time.Second,
		MutationTimeout: 2 * time.Second,
		MaxRetries:      2,
	}, nil, nil)
	require.NoError(t, err)
	return client
}

func TestClient_FetchStatus(t *testing.T) {
	fx := newControlFixture(t)
	client := newTestClient(t, fx.URL)

	status, err := client.FetchStatus(context.Background())
	require.NoError(t, err)

	require.Contains(t, status.Components, "cardiac")
	assert.ElementsMatch(t, []string{"hr", "ecg"}, status.Components["cardiac"].AvailableSignals)
	assert.True(t, status.Active("cardiac", "hr"))
	assert.False(t, status.Active("cardiac", "ecg"))
	assert.False(t, status.Active("missing", "hr"))

	cached, lastErr := client.Snapshot()
	assert.Empty(t, lastErr)
	assert.Equal(t, status, cached)
	assert.False(t, client.LastFetch().IsZero())
}

func TestClient_MutationRefreshesStatus(t *testing.T) {
	fx := newControlFixture(t)
	client := newTestClient(t, fx.URL)

	require.NoError(t, client.EnableSignal(context.Background(), "cardiac", "ecg"))

	// The mutation is followed by an implicit status fetch
	log := fx.requestLog()
	require.Len(t, log, 2)
	assert.Equal(t, "POST /api/signals/cardiac/signals/ecg/enable", log[0])
	assert.Equal(t, "GET /api/signals/components", log[1])

	cached, _ := client.Snapshot()
	assert.True(t, cached.Active("cardiac", "ecg"))
}

func TestClient_MutationRetriesServerErrors(t *testing.T) {
	fx := newControlFixture(t)
	fx.failMutations.Store(2)
	client := newTestClient(t, fx.URL)

	require.NoError(t, client.DisableSignal(context.Background(), "cardiac", "hr"))

	cached, _ := client.Snapshot()
	assert.False(t, cached.Active("cardiac", "hr"))
}

func TestClient_MutationGivesUpAfterRetries(t *testing.T) {
	fx := newControlFixture(t)
	fx.failMutations.Store(10)
	client := newTestClient(t, fx.URL)

	err := client.DisableSignal(context.Background(), "cardiac", "hr")
	require.Error(t, err)

	_, lastErr := client.Snapshot()
	assert.NotEmpty(t, lastErr)

	// The guard is released on failure; the next mutation is accepted
	fx.failMutations.Store(0)
	assert.NoError(t, client.EnableSignal(context.Background(), "cardiac", "ecg"))
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	fx := newControlFixture(t)
	client := newTestClient(t, fx.URL)

	err := client.EnableSignal(context.Background(), "unknown", "sig")
	require.Error(t, err)

	// One POST, no retries on 404
	posts := 0
	for _, entry := range fx.requestLog() {
		if entry == "POST /api/signals/unknown/signals/sig/enable" {
			posts++
		}
	}
	assert.Equal(t, 1, posts)
}

func TestClient_ConcurrentMutationRejected(t *testing.T) {
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			entered.Done()
			<-release
		}
		w.Write([]byte(`{"components":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	done := make(chan error, 1)
	go func() {
		done <- client.EnableAll(context.Background())
	}()
	entered.Wait()

	err := client.DisableAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestClient_ComponentAndGlobalPaths(t *testing.T) {
	fx := newControlFixture(t)
	client := newTestClient(t, fx.URL)

	require.NoError(t, client.DisableComponent(context.Background(), "cardiac"))
	require.NoError(t, client.EnableAll(context.Background()))

	log := fx.requestLog()
	assert.Contains(t, log, "POST /api/signals/cardiac/disable-all")
	assert.Contains(t, log, "POST /api/signals/enable-all")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.ControlConfig{}, nil, nil)
	assert.Error(t, err)
}
