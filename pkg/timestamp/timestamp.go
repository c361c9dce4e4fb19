// Package timestamp provides standardized Unix timestamp handling utilities.
//
// This package uses int64 milliseconds as the canonical timestamp format. The
// upstream acquisition firmware is not consistent about units (some signal
// sources stamp in seconds, others in milliseconds), so Parse applies a
// magnitude heuristic and normalizes everything to milliseconds since the Unix
// epoch (UTC).
//
// Zero value semantics: a timestamp of 0 means "not set".
package timestamp

import (
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Seconds converts Unix milliseconds to seconds on the chart time axis.
func Seconds(ms int64) float64 {
	return float64(ms) / 1000.0
}

// Format converts Unix milliseconds to RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Clock converts Unix milliseconds to a wall-clock HH:MM:SS string, as shown
// in anomaly feed entries. Returns empty string if timestamp is 0.
func Clock(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("15:04:05")
}

// Parse converts various wire timestamp formats to Unix milliseconds.
// Supports:
//   - int64/int/float64 (assumed milliseconds if > 1e12, otherwise seconds)
//   - string (RFC3339 or numeric)
//   - time.Time
//   - nil/zero values (returns 0)
//
// Returns 0 for invalid input.
func Parse(input any) int64 {
	if input == nil {
		return 0
	}

	switch v := input.(type) {
	case int64:
		if v == 0 {
			return 0
		}
		// Above 1e12 the value can only be milliseconds (year 33658 otherwise)
		if v > 1e12 {
			return v
		}
		return v * 1000

	case float64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return int64(v)
		}
		return int64(v * 1000)

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case string:
		if v == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return ToUnixMs(t)
		}
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}
		return 0

	case time.Time:
		return ToUnixMs(v)

	default:
		return 0
	}
}

// IsZero checks if a timestamp is unset (zero).
func IsZero(ms int64) bool {
	return ms == 0
}
