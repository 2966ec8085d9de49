package geo

import (
	"context"
	"errors"
)

// Location errors.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrLocateTimeout       = errors.New("location request timed out")
)

// Locator obtains the current device position.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// StaticLocator always reports the same position.
// The HTTP API and the terminal client use it with coordinates supplied by the caller.
type StaticLocator struct {
	Position Coordinates
}

// Locate returns the configured position, or ErrPositionUnavailable if it is out of range.
func (l StaticLocator) Locate(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}
	if !l.Position.Valid() {
		return Coordinates{}, ErrPositionUnavailable
	}
	return l.Position, nil
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context) (Coordinates, error)

// Locate calls f(ctx).
func (f LocatorFunc) Locate(ctx context.Context) (Coordinates, error) {
	return f(ctx)
}

// UserMessage maps a location error to the message shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location access was denied. Allow location access and try again."
	case errors.Is(err, ErrPositionUnavailable):
		return "Your position is currently unavailable."
	case errors.Is(err, ErrLocateTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Getting your location took too long. Please try again."
	default:
		return "Could not determine your location."
	}
}
