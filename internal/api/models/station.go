package models

import (
	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
)

// Station is a railway station as returned by the nearby-stations endpoint.
type Station struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Operator string  `json:"operator,omitempty"`
	Network  string  `json:"network,omitempty"`
}

// NewStation converts a domain station.
func NewStation(s station.Station) Station {
	return Station{
		ID:       s.ID,
		Name:     s.Name,
		Lat:      s.Location.Lat,
		Lng:      s.Location.Lng,
		Operator: s.Operator,
		Network:  s.Network,
	}
}

// Domain converts back to a domain station.
func (s Station) Domain() station.Station {
	return station.Station{
		ID:       s.ID,
		Name:     s.Name,
		Location: geo.Coordinates{Lat: s.Lat, Lng: s.Lng},
		Operator: s.Operator,
		Network:  s.Network,
	}
}

// RailwayRef identifies a railway line serving a station.
type RailwayRef struct {
	RailwayID   string `json:"railwayId"`
	RailwayName string `json:"railwayName"`
	Operator    string `json:"operator,omitempty"`
}

// StationRailways lists the lines serving one station name.
type StationRailways struct {
	StationName string       `json:"stationName"`
	Railways    []RailwayRef `json:"railways"`
}

// NewStationRailways converts the resolution of one name.
func NewStationRailways(name string, refs []railway.Ref) StationRailways {
	out := StationRailways{StationName: name, Railways: make([]RailwayRef, 0, len(refs))}
	for _, r := range refs {
		out.Railways = append(out.Railways, RailwayRef{
			RailwayID:   r.RailwayID,
			RailwayName: r.RailwayName,
			Operator:    r.Operator,
		})
	}
	return out
}

// Domain converts back to domain refs.
func (s StationRailways) Domain() []railway.Ref {
	refs := make([]railway.Ref, 0, len(s.Railways))
	for _, r := range s.Railways {
		refs = append(refs, railway.Ref{
			RailwayID:   r.RailwayID,
			RailwayName: r.RailwayName,
			Operator:    r.Operator,
		})
	}
	return refs
}
