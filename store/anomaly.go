package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Martiniu70/control-room-sub000/pkg/timestamp"
	"github.com/Martiniu70/control-room-sub000/telemetry"
)

// DefaultFeedCapacity is the bounded anomaly feed size.
const DefaultFeedCapacity = 10

// AnomalyEntry is one formatted feed entry. Entries are never deduplicated;
// repeated identical anomalies each produce a new entry.
type AnomalyEntry struct {
	ID        string                `json:"id"`
	Group     telemetry.SignalGroup `json:"group"`
	Severity  telemetry.Severity    `json:"severity"`
	Message   string                `json:"message"`
	Timestamp int64                 `json:"timestamp"`
	Formatted string                `json:"formatted"`
}

// NewAnomalyEntry builds a feed entry with the display format
// "<icon> [<time>] <group>: <message>".
func NewAnomalyEntry(group telemetry.SignalGroup, severity telemetry.Severity, message string, tsMs int64) AnomalyEntry {
	return AnomalyEntry{
		ID:        uuid.NewString(),
		Group:     group,
		Severity:  severity,
		Message:   message,
		Timestamp: tsMs,
		Formatted: fmt.Sprintf("%s [%s] %s: %s", severity.Icon(), timestamp.Clock(tsMs), group, message),
	}
}

// AnomalyFeed is a bounded, newest-first list of anomaly entries.
type AnomalyFeed struct {
	mu       sync.RWMutex
	entries  []AnomalyEntry
	capacity int
}

// NewAnomalyFeed creates a feed with the given capacity. Non-positive
// capacity falls back to the default.
func NewAnomalyFeed(capacity int) *AnomalyFeed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &AnomalyFeed{
		entries:  make([]AnomalyEntry, 0, capacity),
		capacity: capacity,
	}
}

// Push prepends an entry, evicting the oldest once the cap is exceeded.
func (f *AnomalyFeed) Push(entry AnomalyEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append([]AnomalyEntry{entry}, f.entries...)
	if len(f.entries) > f.capacity {
		f.entries = f.entries[:f.capacity]
	}
}

// Entries returns a copy of the feed, newest first.
func (f *AnomalyFeed) Entries() []AnomalyEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]AnomalyEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Len returns the number of retained entries.
func (f *AnomalyFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Capacity returns the feed's bound.
func (f *AnomalyFeed) Capacity() int {
	return f.capacity
}
