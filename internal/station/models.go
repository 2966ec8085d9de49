// Package station finds railway stations around a point and ranks them by distance.
package station

import (
	"errors"

	"github.com/commutedeck/commutedeck/internal/geo"
)

// Common errors.
var (
	ErrProviderUnavailable = errors.New("station provider unavailable")
	ErrInvalidRadius       = errors.New("radius must be positive")
	ErrInvalidCoordinates  = errors.New("coordinates out of range")
)

// DefaultRadiusMeters is the search radius used when none is given.
const DefaultRadiusMeters = 3000

// MaxRadiusMeters bounds the search radius accepted from clients.
const MaxRadiusMeters = 10000

// Station is a railway station as reported by the geodata source.
type Station struct {
	ID       string
	Name     string
	Location geo.Coordinates
	Operator string
	Network  string
}

// NearbyStation is a station with its distance from the lookup center.
// DistanceMeters is derived from the center and never stored.
type NearbyStation struct {
	Station
	DistanceMeters float64
}
