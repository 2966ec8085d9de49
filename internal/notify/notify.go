// Package notify delivers railway status changes to chat webhooks and message
// brokers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/transit"
)

// Change is a railway whose status differs from the last stored one.
type Change struct {
	// Previous is nil the first time a railway is seen.
	Previous *transit.RailwayStatus

	Current    transit.RailwayStatus
	DetectedAt time.Time
}

// Recovered reports whether the line went back to normal.
func (c Change) Recovered() bool {
	return c.Previous != nil && !c.Previous.Status.IsNormal() && c.Current.Status.IsNormal()
}

// PreviousStatus returns the earlier status, or the empty string on first sighting.
func (c Change) PreviousStatus() transit.Status {
	if c.Previous == nil {
		return ""
	}
	return c.Previous.Status
}

// Event is the JSON form of a Change published to brokers.
type Event struct {
	RailwayID      string     `json:"railwayId"`
	RailwayName    string     `json:"railwayName"`
	Operator       string     `json:"operator,omitempty"`
	Status         string     `json:"status"`
	PreviousStatus string     `json:"previousStatus,omitempty"`
	StatusText     string     `json:"statusText"`
	Cause          string     `json:"cause,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	DetectedAt     time.Time  `json:"detectedAt"`
}

// NewEvent converts a change to its published form.
func NewEvent(c Change) Event {
	e := Event{
		RailwayID:      c.Current.RailwayID,
		RailwayName:    c.Current.RailwayName,
		Operator:       c.Current.Operator,
		Status:         string(c.Current.Status),
		PreviousStatus: string(c.PreviousStatus()),
		StatusText:     c.Current.StatusText,
		Cause:          c.Current.Cause,
		DetectedAt:     c.DetectedAt.UTC(),
	}
	if !c.Current.UpdatedAt.IsZero() {
		t := c.Current.UpdatedAt.UTC()
		e.UpdatedAt = &t
	}
	return e
}

// Notifier delivers a batch of changes.
type Notifier interface {
	Notify(ctx context.Context, changes []Change) error
	Name() string
}

// Multi fans changes out to every notifier. One failing notifier does not
// stop the others; their errors are joined.
type Multi []Notifier

// Name returns the provider name.
func (m Multi) Name() string {
	return "multi"
}

// Notify calls every notifier in order.
func (m Multi) Notify(ctx context.Context, changes []Change) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, changes); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes each change to the logger. It is the fallback when no
// webhook or broker is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name returns the provider name.
func (n *LogNotifier) Name() string {
	return "log"
}

// Notify logs every change.
func (n *LogNotifier) Notify(_ context.Context, changes []Change) error {
	for _, c := range changes {
		event := n.logger.Warn()
		if c.Current.Status.IsNormal() {
			event = n.logger.Info()
		}
		event.
			Str("railway_id", c.Current.RailwayID).
			Str("railway_name", c.Current.RailwayName).
			Str("status", string(c.Current.Status)).
			Str("previous_status", string(c.PreviousStatus())).
			Str("status_text", c.Current.StatusText).
			Msg("railway status changed")
	}
	return nil
}
