// Package statusstore persists the last observed status of each railway so
// the watcher can tell what changed between runs.
package statusstore

import (
	"errors"
	"time"

	"github.com/commutedeck/commutedeck/internal/transit"
)

// Repository errors.
var (
	ErrRecordNotFound = errors.New("status record not found")
)

// Record is the stored status of one railway.
type Record struct {
	RailwayID   string
	RailwayName string
	Operator    string
	Status      transit.Status
	StatusText  string
	Cause       string

	// UpdatedAt is the provider's timestamp. Zero when the feed had none.
	UpdatedAt time.Time

	// ObservedAt is when the watcher saved the record.
	ObservedAt time.Time
}

// NewRecord converts a fetched status into a record observed at observedAt.
func NewRecord(s transit.RailwayStatus, observedAt time.Time) *Record {
	return &Record{
		RailwayID:   s.RailwayID,
		RailwayName: s.RailwayName,
		Operator:    s.Operator,
		Status:      s.Status,
		StatusText:  s.StatusText,
		Cause:       s.Cause,
		UpdatedAt:   s.UpdatedAt,
		ObservedAt:  observedAt,
	}
}

// RailwayStatus converts the record back to the transit type.
func (r *Record) RailwayStatus() transit.RailwayStatus {
	return transit.RailwayStatus{
		RailwayID:   r.RailwayID,
		RailwayName: r.RailwayName,
		Operator:    r.Operator,
		Status:      r.Status,
		StatusText:  r.StatusText,
		Cause:       r.Cause,
		UpdatedAt:   r.UpdatedAt,
	}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
