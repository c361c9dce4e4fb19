package telemetry

// SignalPoint is one received sample for a channel. Immutable once created.
//
// Value holds whatever the wire carried: a scalar (float64), a batch of
// samples ([]float64), or a structured object (map[string]any) for compound
// signals like faceLandmarks or car_information.
type SignalPoint struct {
	// Timestamp in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	Value any `json:"value"`

	// Quality is an optional signal quality indicator (0.0 to 1.0).
	// Negative means not reported.
	Quality float64 `json:"quality,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Samples extracts the point's value as a numeric batch. A scalar value
// yields a single-element batch. Returns nil for non-numeric values.
func (p SignalPoint) Samples() []float64 {
	switch v := p.Value.(type) {
	case float64:
		return []float64{v}
	case int:
		return []float64{float64(v)}
	case int64:
		return []float64{float64(v)}
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			default:
				return nil
			}
		}
		return out
	default:
		return nil
	}
}

// Scalar returns the value as a single float64 if it is numeric.
func (p SignalPoint) Scalar() (float64, bool) {
	switch v := p.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
