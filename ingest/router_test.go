package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/store"
	"github.com/Martiniu70/control-room-sub000/telemetry"
)

type routerFixture struct {
	router *Router
	store  *store.ChannelStore
	feed   *store.AnomalyFeed
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	channelStore := store.NewChannelStore()
	feed := store.NewAnomalyFeed(10)

	router, err := NewRouter(config.DefaultChannels(), channelStore, feed, nil, nil, nil)
	require.NoError(t, err)

	return &routerFixture{router: router, store: channelStore, feed: feed}
}

func signalUpdateJSON(t *testing.T, group, name string, tsMs int64, value any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":       "signal.update",
		"signalType": group,
		"dataType":   name,
		"timestamp":  tsMs,
		"value":      value,
	})
	require.NoError(t, err)
	return data
}

func TestRouter_ScalarUpdate(t *testing.T) {
	f := newRouterFixture(t)
	key := telemetry.ChannelKey{Group: telemetry.GroupCardiac, Name: "hr"}

	f.router.HandleRaw(signalUpdateJSON(t, "cardiac", "hr", 1700000000000, 72.0))

	point, ok := f.store.Latest(key)
	require.True(t, ok)
	assert.Equal(t, 72.0, point.Value)

	series, ok := f.router.Series(key)
	require.True(t, ok)
	assert.Equal(t, 1, series.Len())
}

func TestRouter_ECGBatch(t *testing.T) {
	f := newRouterFixture(t)
	key := telemetry.ChannelKey{Group: telemetry.GroupCardiac, Name: "ecg"}

	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i) * 0.001
	}
	f.router.HandleRaw(signalUpdateJSON(t, "cardiac", "ecg", 1700000000000, values))

	series, ok := f.router.Series(key)
	require.True(t, ok)

	// 1000 samples at 1000 Hz with k=10 yield 100 retained points
	points := series.Points()
	require.Len(t, points, 100)
	for i := 1; i < len(points); i++ {
		assert.InDelta(t, 0.01, points[i].X-points[i-1].X, 1e-9)
	}
}

func TestRouter_EEGRawPerElectrode(t *testing.T) {
	f := newRouterFixture(t)
	key := telemetry.ChannelKey{Group: telemetry.GroupEEG, Name: "eegRaw"}

	value := map[string]any{
		"Fp1": []float64{1, 2, 3, 4, 5},
		"Fp2": []float64{6, 7, 8, 9, 10},
	}
	f.router.HandleRaw(signalUpdateJSON(t, "eeg", "eegRaw", 1700000000000, value))

	multi, ok := f.router.MultiSeries(key)
	require.True(t, ok)

	snap := multi.Snapshot()
	require.Len(t, snap, 2)
	// k=5 on 5 samples keeps the first of each electrode
	assert.Len(t, snap["Fp1"], 1)
	assert.Equal(t, 1.0, snap["Fp1"][0].Y)
	assert.Equal(t, 6.0, snap["Fp2"][0].Y)
}

func TestRouter_UnknownGroupIgnored(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleRaw(signalUpdateJSON(t, "respiratory", "rate", 1700000000000, 16.0))

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.feed.Len())
}

func TestRouter_UnknownLeafLatestOnly(t *testing.T) {
	f := newRouterFixture(t)
	key := telemetry.ChannelKey{Group: telemetry.GroupCardiac, Name: "hrv"}

	// Known group, leaf absent from the channel table: store only
	f.router.HandleRaw(signalUpdateJSON(t, "cardiac", "hrv", 1700000000000, 42.0))

	_, ok := f.store.Latest(key)
	assert.True(t, ok)
	_, hasSeries := f.router.Series(key)
	assert.False(t, hasSeries)
}

func TestRouter_LatestOnlyChannel(t *testing.T) {
	f := newRouterFixture(t)
	key := telemetry.ChannelKey{Group: telemetry.GroupCamera, Name: "faceLandmarks"}

	value := map[string]any{"landmarks": []float64{0.1, 0.2}}
	f.router.HandleRaw(signalUpdateJSON(t, "camera", "faceLandmarks", 1700000000000, value))

	point, ok := f.store.Latest(key)
	require.True(t, ok)
	assert.NotNil(t, point.Value)
	_, hasSeries := f.router.Series(key)
	assert.False(t, hasSeries)
}

func TestRouter_InlineAnomalies(t *testing.T) {
	f := newRouterFixture(t)

	data, err := json.Marshal(map[string]any{
		"type":       "signal.update",
		"signalType": "cardiac",
		"dataType":   "hr",
		"timestamp":  1700000000000,
		"value":      180.0,
		"anomalies":  []string{"HR above threshold", "sustained tachycardia"},
	})
	require.NoError(t, err)
	f.router.HandleRaw(data)

	entries := f.feed.Entries()
	require.Len(t, entries, 2)
	// One entry per anomaly, newest first, prefixed with the signal group
	assert.Contains(t, entries[0].Formatted, "cardiac: sustained tachycardia")
	assert.Contains(t, entries[1].Formatted, "cardiac: HR above threshold")
}

func TestRouter_AnomalyAlertSeverities(t *testing.T) {
	f := newRouterFixture(t)

	alertJSON := func(severity string) []byte {
		data, err := json.Marshal(map[string]any{
			"type":       "anomaly.alert",
			"signalType": "eeg",
			"severity":   severity,
			"message":    "amplitude spike",
			"timestamp":  1700000000000,
		})
		require.NoError(t, err)
		return data
	}

	// Lowest tier is discarded
	f.router.HandleRaw(alertJSON("info"))
	assert.Zero(t, f.feed.Len())

	// Warning produces exactly one new front entry
	f.router.HandleRaw(alertJSON("warning"))
	entries := f.feed.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, telemetry.SeverityWarning, entries[0].Severity)
}

func TestRouter_MalformedFrameDropped(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleRaw([]byte(`{not json at all`))
	f.router.HandleRaw([]byte(`{"no": "type"}`))

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.feed.Len())
}

func TestRouter_UnrecognizedFrameDropped(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleRaw([]byte(`{"type": "future.frame", "payload": {}}`))

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.feed.Len())
}

func TestRouter_HeartbeatBookkeeping(t *testing.T) {
	f := newRouterFixture(t)

	data, err := json.Marshal(map[string]any{
		"type":              "system.heartbeat",
		"timestamp":         1700000000000,
		"systemHealth":      "ok",
		"activeConnections": 3,
		"uptime":            120.5,
	})
	require.NoError(t, err)
	f.router.HandleRaw(data)

	hb := f.router.Heartbeat()
	assert.Equal(t, int64(1700000000000), hb.LastSeen)
	assert.Equal(t, "ok", hb.SystemHealth)
	assert.Equal(t, 3, hb.ActiveConnections)

	// Heartbeats produce no store mutation
	assert.Zero(t, f.store.Len())
}

func TestRouter_TransportEventsNoEffect(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleRaw([]byte(`{"type": "connection.established", "clientId": "c1"}`))
	f.router.HandleRaw([]byte(`{"type": "websocket.connected"}`))
	f.router.HandleRaw([]byte(`{"type": "zeromq.warning", "message": "slow"}`))

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.feed.Len())
}
