package station

import (
	"sort"

	"github.com/commutedeck/commutedeck/internal/geo"
)

// Rank computes each station's distance from center, sorts ascending and keeps
// at most limit entries. Equal distances are ordered by name, then id.
// A limit <= 0 keeps every station.
func Rank(center geo.Coordinates, stations []Station, limit int) []NearbyStation {
	ranked := make([]NearbyStation, 0, len(stations))
	for _, s := range stations {
		ranked = append(ranked, NearbyStation{
			Station:        s,
			DistanceMeters: geo.Distance(center, s.Location),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.DistanceMeters != b.DistanceMeters {
			return a.DistanceMeters < b.DistanceMeters
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
