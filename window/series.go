// Package window converts a high-rate, batch-delivered numeric stream into a
// bounded series suitable for a render loop.
//
// Each series applies systematic decimation (keep every k-th sample, indexed
// over the whole accumulated stream so phase alignment survives batch
// boundaries) and dual trimming: a sliding time window measured from the
// latest sample, plus a hard element cap that bounds memory regardless of the
// window/rate combination.
package window

import (
	"sync"
	"time"

	"github.com/Martiniu70/control-room-sub000/errors"
	"github.com/Martiniu70/control-room-sub000/pkg/timestamp"
)

// minDomainSpan is the floor applied to the visible domain. Consumers divide
// by the span, so it is never allowed below one time unit.
const minDomainSpan = 1.0

// Point is one retained sample: X on the shared time axis in seconds, Y the
// sample value.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Config sets the per-channel retention parameters. Different signal types
// use different windows: short for high-frequency bio-signals, long for
// low-frequency kinematics.
type Config struct {
	// SampleRate is the upstream rate in Hz, used to synthesize per-sample
	// times within a batch.
	SampleRate float64

	// WindowDuration is the retained time span relative to the latest sample.
	WindowDuration time.Duration

	// Downsample is the decimation factor k: keep every k-th sample.
	// Values below 1 are treated as 1 (no decimation).
	Downsample int

	// MaxPoints is the hard cap on retained points, oldest dropped first.
	MaxPoints int
}

// Validate checks the configuration for usability.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "window", "Validate", "sample rate must be positive")
	}
	if c.WindowDuration <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "window", "Validate", "window duration must be positive")
	}
	if c.MaxPoints <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "window", "Validate", "max points must be positive")
	}
	return nil
}

func (c Config) downsample() int {
	if c.Downsample < 1 {
		return 1
	}
	return c.Downsample
}

// Series is the windowed, downsampled series for one channel.
//
// Mutation happens on the session's processing goroutine; the mutex only
// guards against concurrent snapshot reads from the rendering side.
type Series struct {
	mu     sync.RWMutex
	cfg    Config
	points []Point

	// sampleIndex counts every raw sample ever appended, across batches.
	// Decimation keeps samples whose global index is a multiple of k.
	sampleIndex int64
}

// NewSeries creates a series with the given retention configuration.
func NewSeries(cfg Config) (*Series, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Series{
		cfg:    cfg,
		points: make([]Point, 0, cfg.MaxPoints),
	}, nil
}

// AppendBatch appends one delivered batch. Sample i is placed at
// batchStart + i/rate on the time axis; batchStartMs is Unix milliseconds.
// Appending is incremental: only the new points are decimated and the trim
// walks from the old end, never rescanning history.
func (s *Series) AppendBatch(batchStartMs int64, values []float64) {
	if len(values) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := timestamp.Seconds(batchStartMs)
	k := int64(s.cfg.downsample())

	for i, v := range values {
		idx := s.sampleIndex + int64(i)
		if idx%k != 0 {
			continue
		}
		x := start + float64(i)/s.cfg.SampleRate
		s.appendLocked(Point{X: x, Y: v})
	}
	s.sampleIndex += int64(len(values))

	s.trimLocked()
}

// AppendPoint appends a single scalar sample. Low-rate channels (1 Hz heart
// rate, 0.2 Hz alcohol level) deliver one value per frame; the sample still
// participates in the global decimation index so a k>1 config behaves the
// same as for batches.
func (s *Series) AppendPoint(tsMs int64, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := int64(s.cfg.downsample())
	idx := s.sampleIndex
	s.sampleIndex++

	if idx%k != 0 {
		return
	}

	s.appendLocked(Point{X: timestamp.Seconds(tsMs), Y: value})
	s.trimLocked()
}

// appendLocked inserts one point preserving non-decreasing X. Updates arrive
// in transport order, not timestamp order; a point stamped before the current
// tail is clamped onto the tail rather than reordered.
func (s *Series) appendLocked(p Point) {
	if n := len(s.points); n > 0 && p.X < s.points[n-1].X {
		p.X = s.points[n-1].X
	}
	s.points = append(s.points, p)
}

// trimLocked applies the sliding time window and the hard cap.
func (s *Series) trimLocked() {
	n := len(s.points)
	if n == 0 {
		return
	}

	cutoff := s.points[n-1].X - s.cfg.WindowDuration.Seconds()

	firstKept := 0
	for firstKept < n-1 && s.points[firstKept].X < cutoff {
		firstKept++
	}

	if over := n - firstKept - s.cfg.MaxPoints; over > 0 {
		firstKept += over
	}

	if firstKept > 0 {
		kept := len(s.points) - firstKept
		copy(s.points, s.points[firstKept:])
		s.points = s.points[:kept]
	}
}

// Len returns the number of retained points.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Points returns a copy of the retained series, oldest first.
func (s *Series) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Latest returns the most recent retained point.
func (s *Series) Latest() (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Domain returns the visible time domain [start, end] for the series.
//
// The start is latest − window, clamped to the first retained sample so the
// domain never begins before data exists. If the resulting span falls below
// the minimum floor the end is pushed out to keep consumers numerically
// stable. An empty series yields [0, minDomainSpan].
func (s *Series) Domain() (start, end float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return 0, minDomainSpan
	}

	first := s.points[0].X
	latest := s.points[len(s.points)-1].X

	start = latest - s.cfg.WindowDuration.Seconds()
	if start < first {
		start = first
	}

	end = latest
	if end-start < minDomainSpan {
		end = start + minDomainSpan
	}
	return start, end
}

// Reset drops all retained points and restarts the decimation index.
func (s *Series) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = s.points[:0]
	s.sampleIndex = 0
}
