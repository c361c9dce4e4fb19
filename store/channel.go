// Package store holds the per-channel latest values and the bounded anomaly
// feed. Both survive transient disconnects: a reconnect resumes writing into
// the same stores, nothing is cleared.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Martiniu70/control-room-sub000/telemetry"
)

// channelState tracks the latest point for one channel.
type channelState struct {
	latest    telemetry.SignalPoint
	updates   int64
	updatedAt time.Time
}

// ChannelStore maps (group, name) to the latest received point. Channels are
// created lazily on first update and never destroyed.
type ChannelStore struct {
	mu       sync.RWMutex
	channels map[telemetry.ChannelKey]*channelState
}

// NewChannelStore creates an empty channel store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{
		channels: make(map[telemetry.ChannelKey]*channelState),
	}
}

// Update replaces the latest point for a channel, creating the channel on
// first use.
func (cs *ChannelStore) Update(key telemetry.ChannelKey, point telemetry.SignalPoint) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	state, ok := cs.channels[key]
	if !ok {
		state = &channelState{}
		cs.channels[key] = state
	}
	state.latest = point
	state.updates++
	state.updatedAt = time.Now()
}

// Latest returns the most recent point for a channel.
func (cs *ChannelStore) Latest(key telemetry.ChannelKey) (telemetry.SignalPoint, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	state, ok := cs.channels[key]
	if !ok {
		return telemetry.SignalPoint{}, false
	}
	return state.latest, true
}

// UpdateCount returns how many updates a channel has received.
func (cs *ChannelStore) UpdateCount(key telemetry.ChannelKey) int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	state, ok := cs.channels[key]
	if !ok {
		return 0
	}
	return state.updates
}

// Keys returns all channel keys seen so far, sorted by group then name.
func (cs *ChannelStore) Keys() []telemetry.ChannelKey {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	keys := make([]telemetry.ChannelKey, 0, len(cs.channels))
	for k := range cs.channels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group < keys[j].Group
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Len returns the number of channels created so far.
func (cs *ChannelStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.channels)
}

// Snapshot returns a copy of every channel's latest point.
func (cs *ChannelStore) Snapshot() map[telemetry.ChannelKey]telemetry.SignalPoint {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	out := make(map[telemetry.ChannelKey]telemetry.SignalPoint, len(cs.channels))
	for k, state := range cs.channels {
		out[k] = state.latest
	}
	return out
}
