// Package models holds the wire types of the commutedeck HTTP API.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HealthStatus is the coarse state reported by /health and /status.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp serializes as RFC 3339 in UTC with second precision, which is
// what clients compare against the transit feed's own timestamps.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(time.RFC3339)+2)
	buf = append(buf, '"')
	buf = time.Time(t).UTC().AppendFormat(buf, time.RFC3339)
	return append(buf, '"'), nil
}

// UnmarshalJSON accepts any RFC 3339 value, fractional seconds and offsets
// included. null and "" leave the receiver untouched.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(parsed.UTC())
	return nil
}

func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// TimestampPtr is for optional fields; the zero time maps to nil so the field
// is omitted.
func TimestampPtr(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := Timestamp(t)
	return &ts
}
