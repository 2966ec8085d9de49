// Package nearby joins nearby stations with the live status of the lines
// serving them.
package nearby

import (
	"context"
	"time"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// StationFinder returns raw stations around a point.
type StationFinder interface {
	FindStations(ctx context.Context, center geo.Coordinates, radiusMeters int) ([]station.Station, error)
}

// RailwayResolver maps station names to the lines serving them.
type RailwayResolver interface {
	ResolveRailways(ctx context.Context, names []string) (map[string][]railway.Ref, error)
}

// StatusFetcher returns the status of every known line.
type StatusFetcher interface {
	FetchAllStatuses(ctx context.Context) ([]*transit.RailwayStatus, error)
}

// StationWithStatus is a ranked station and the statuses of its lines, in the
// order the status source returned them.
type StationWithStatus struct {
	Station         station.NearbyStation
	RailwayStatuses []transit.RailwayStatus
}

// Result is the outcome of a one-shot aggregation.
type Result struct {
	Location    geo.Coordinates
	Stations    []StationWithStatus
	LastUpdated time.Time
}

// Phase is the stage a Session is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseLocating    Phase = "locating"
	PhaseDiscovering Phase = "discovering"
	PhaseResolving   Phase = "resolving"
	PhaseAttaching   Phase = "attaching"
	PhaseReady       Phase = "ready"
	PhaseFailed      Phase = "failed"
)

// Snapshot is an immutable copy of a Session's state.
type Snapshot struct {
	Phase      Phase
	Generation uint64

	// Location is nil until the first successful locate.
	Location *geo.Coordinates

	// LocationError and StationError hold user-facing messages.
	LocationError string
	StationError  string

	Stations    []StationWithStatus
	LastUpdated time.Time
	Polling     bool
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	if s.Stations != nil {
		out.Stations = cloneStations(s.Stations)
	}
	return out
}

func cloneStations(in []StationWithStatus) []StationWithStatus {
	out := make([]StationWithStatus, len(in))
	for i, sws := range in {
		out[i] = StationWithStatus{Station: sws.Station}
		if sws.RailwayStatuses != nil {
			out[i].RailwayStatuses = append([]transit.RailwayStatus(nil), sws.RailwayStatuses...)
		}
	}
	return out
}
