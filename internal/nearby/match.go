package nearby

import (
	"strings"

	"github.com/commutedeck/commutedeck/internal/transit"
)

// MatchRailway reports whether a railway id from the station index and one
// from the status source refer to the same line. The ids come from independent
// schemes, so besides equality it accepts either id containing the last
// dot-delimited segment of the other. This can over-match lines that share a
// trailing token and under-match lines named differently by each source.
func MatchRailway(indexID, statusID string) bool {
	if indexID == "" || statusID == "" {
		return false
	}
	if indexID == statusID {
		return true
	}
	if seg := lastSegment(indexID); seg != "" && strings.Contains(statusID, seg) {
		return true
	}
	if seg := lastSegment(statusID); seg != "" && strings.Contains(indexID, seg) {
		return true
	}
	return false
}

// MatchStatuses returns the statuses matching any of railwayIDs, in status
// order and without duplicates.
func MatchStatuses(railwayIDs []string, statuses []*transit.RailwayStatus) []transit.RailwayStatus {
	matched := make([]transit.RailwayStatus, 0, len(railwayIDs))
	if len(railwayIDs) == 0 {
		return matched
	}

	seen := make(map[string]struct{}, len(railwayIDs))
	for _, st := range statuses {
		if st == nil {
			continue
		}
		if _, dup := seen[st.RailwayID]; dup {
			continue
		}
		for _, id := range railwayIDs {
			if MatchRailway(id, st.RailwayID) {
				seen[st.RailwayID] = struct{}{}
				matched = append(matched, *st)
				break
			}
		}
	}
	return matched
}

func lastSegment(id string) string {
	return id[strings.LastIndexByte(id, '.')+1:]
}
