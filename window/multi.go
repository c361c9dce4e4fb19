package window

import (
	"sort"
	"sync"
)

// MultiSeries maintains one Series per sub-channel key, all sharing the same
// retention configuration and time axis. EEG raw data is the primary user:
// one series per electrode, created lazily on first sample.
type MultiSeries struct {
	mu     sync.RWMutex
	cfg    Config
	series map[string]*Series
}

// NewMultiSeries creates an empty multi-series with the shared configuration.
func NewMultiSeries(cfg Config) (*MultiSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MultiSeries{
		cfg:    cfg,
		series: make(map[string]*Series),
	}, nil
}

// Channel returns the series for a sub-channel key, creating it on first use.
func (m *MultiSeries) Channel(key string) *Series {
	m.mu.RLock()
	s, ok := m.series[key]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.series[key]; ok {
		return s
	}

	// cfg already validated in NewMultiSeries
	s, _ = NewSeries(m.cfg)
	m.series[key] = s
	return s
}

// AppendBatch appends a batch to one sub-channel.
func (m *MultiSeries) AppendBatch(key string, batchStartMs int64, values []float64) {
	m.Channel(key).AppendBatch(batchStartMs, values)
}

// Keys returns the sub-channel keys in sorted order.
func (m *MultiSeries) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.series))
	for k := range m.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every sub-channel's retained points.
func (m *MultiSeries) Snapshot() map[string][]Point {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]Point, len(m.series))
	for k, s := range m.series {
		out[k] = s.Points()
	}
	return out
}

// Domain returns the combined visible domain across all sub-channels: the
// earliest start and latest end of the per-channel domains. Empty multi-series
// behaves like an empty Series.
func (m *MultiSeries) Domain() (start, end float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.series) == 0 {
		return 0, minDomainSpan
	}

	first := true
	for _, s := range m.series {
		cs, ce := s.Domain()
		if first {
			start, end = cs, ce
			first = false
			continue
		}
		if cs < start {
			start = cs
		}
		if ce > end {
			end = ce
		}
	}
	return start, end
}
