package models

import (
	"github.com/commutedeck/commutedeck/internal/nearby"
)

// NearbyStation is a ranked station with its distance from the query point.
type NearbyStation struct {
	Station
	DistanceMeters float64 `json:"distanceMeters"`
}

// StationWithStatus joins a station with the status of its lines.
type StationWithStatus struct {
	Station         NearbyStation `json:"station"`
	RailwayStatuses []TrainInfo   `json:"railwayStatuses"`
}

// Nearby is the response of the one-shot aggregation endpoint.
type Nearby struct {
	Location    Point               `json:"location"`
	Stations    []StationWithStatus `json:"stations"`
	LastUpdated *Timestamp          `json:"lastUpdated,omitempty"`
}

// NewNearby converts an aggregation result.
func NewNearby(res *nearby.Result) Nearby {
	out := Nearby{
		Location:    Point{Lat: res.Location.Lat, Lng: res.Location.Lng},
		Stations:    make([]StationWithStatus, 0, len(res.Stations)),
		LastUpdated: TimestampPtr(res.LastUpdated),
	}
	for _, s := range res.Stations {
		statuses := make([]TrainInfo, 0, len(s.RailwayStatuses))
		for _, rs := range s.RailwayStatuses {
			statuses = append(statuses, NewTrainInfo(rs))
		}
		out.Stations = append(out.Stations, StationWithStatus{
			Station: NearbyStation{
				Station:        NewStation(s.Station.Station),
				DistanceMeters: s.Station.DistanceMeters,
			},
			RailwayStatuses: statuses,
		})
	}
	return out
}
