// Package railway maintains a reverse index from station names to the railway
// lines that serve them.
package railway

import (
	"context"
	"errors"
)

// ErrIndexUnavailable is returned when the index cannot be built.
var ErrIndexUnavailable = errors.New("railway index unavailable")

// Ref identifies a railway line.
type Ref struct {
	RailwayID   string
	RailwayName string
	Operator    string
}

// StationName is a station as it appears in a line's station order.
type StationName struct {
	Name   string
	NameEn string
}

// Line is a railway line with its ordered stations.
type Line struct {
	Ref
	Stations []StationName
}

// LineSource returns the complete set of railway lines.
type LineSource interface {
	// FetchLines returns every known line with its ordered station list.
	FetchLines(ctx context.Context) ([]Line, error)

	// Name returns the source name for logging.
	Name() string
}
