package station_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/station"
)

var user = geo.Coordinates{Lat: 35.9100, Lng: 139.6200}

func TestRank_SortsByDistance(t *testing.T) {
	stations := []station.Station{
		{ID: "far", Name: "Far", Location: geo.Coordinates{Lat: 35.9200, Lng: 139.6300}},
		{ID: "omiya", Name: "Omiya", Location: geo.Coordinates{Lat: 35.9066, Lng: 139.6233}},
		{ID: "mid", Name: "Mid", Location: geo.Coordinates{Lat: 35.9150, Lng: 139.6250}},
	}

	ranked := station.Rank(user, stations, 3)
	require.Len(t, ranked, 3)

	assert.Equal(t, "omiya", ranked[0].ID)
	assert.InDelta(t, 481, ranked[0].DistanceMeters, 10)
	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].DistanceMeters, ranked[i].DistanceMeters)
	}
}

func TestRank_Truncates(t *testing.T) {
	stations := make([]station.Station, 0, 5)
	for i, lat := range []float64{35.911, 35.912, 35.913, 35.914, 35.915} {
		stations = append(stations, station.Station{
			ID:       string(rune('a' + i)),
			Name:     string(rune('A' + i)),
			Location: geo.Coordinates{Lat: lat, Lng: 139.62},
		})
	}

	assert.Len(t, station.Rank(user, stations, 3), 3)
	assert.Len(t, station.Rank(user, stations[:2], 3), 2)
	assert.Len(t, station.Rank(user, stations, 0), 5)
	assert.Empty(t, station.Rank(user, nil, 3))
}

func TestRank_TieBreakByNameThenID(t *testing.T) {
	loc := geo.Coordinates{Lat: 35.911, Lng: 139.62}
	stations := []station.Station{
		{ID: "2", Name: "Beta", Location: loc},
		{ID: "3", Name: "Alpha", Location: loc},
		{ID: "1", Name: "Alpha", Location: loc},
	}

	ranked := station.Rank(user, stations, 0)

	assert.Equal(t, "1", ranked[0].ID)
	assert.Equal(t, "3", ranked[1].ID)
	assert.Equal(t, "2", ranked[2].ID)
}
