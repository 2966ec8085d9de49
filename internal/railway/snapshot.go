package railway

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// stationSuffixes are stripped from a name before the second lookup attempt.
var stationSuffixes = []string{"駅", " Station", " station"}

// snapshot is an immutable, fully built index.
type snapshot struct {
	byName   map[string][]Ref
	names    []string // sorted keys of byName
	railways []Ref
	builtAt  time.Time
}

func buildSnapshot(lines []Line, builtAt time.Time) *snapshot {
	s := &snapshot{
		byName:  make(map[string][]Ref),
		builtAt: builtAt,
	}
	registered := make(map[string]map[string]struct{})
	railwaySeen := make(map[string]struct{}, len(lines))

	register := func(name string, ref Ref) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		ids, ok := registered[name]
		if !ok {
			ids = make(map[string]struct{})
			registered[name] = ids
		}
		if _, dup := ids[ref.RailwayID]; dup {
			return
		}
		ids[ref.RailwayID] = struct{}{}
		s.byName[name] = append(s.byName[name], ref)
	}

	for _, line := range lines {
		if line.RailwayID == "" {
			continue
		}
		if _, dup := railwaySeen[line.RailwayID]; !dup {
			railwaySeen[line.RailwayID] = struct{}{}
			s.railways = append(s.railways, line.Ref)
		}
		for _, st := range line.Stations {
			register(st.Name, line.Ref)
			if st.NameEn != st.Name {
				register(st.NameEn, line.Ref)
			}
		}
	}

	s.names = make([]string, 0, len(s.byName))
	for name := range s.byName {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	return s
}

// lookup resolves one name: exact match, then with the station suffix removed,
// then the closest prefix match. Returns nil when nothing matches.
func (s *snapshot) lookup(name string) []Ref {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	if refs, ok := s.byName[name]; ok {
		return refs
	}

	query := stripStationSuffix(name)
	if query == "" {
		return nil
	}
	if query != name {
		if refs, ok := s.byName[query]; ok {
			return refs
		}
	}

	if key, ok := s.closestPrefix(query); ok {
		return s.byName[key]
	}
	return nil
}

// closestPrefix returns the key that is a prefix of query, or has query as a
// prefix, with the smallest length difference in runes. names is sorted, so
// the first key at the minimum difference is the lexicographically smallest.
func (s *snapshot) closestPrefix(query string) (string, bool) {
	queryLen := utf8.RuneCountInString(query)
	best := ""
	bestDiff := -1

	for _, key := range s.names {
		if !strings.HasPrefix(key, query) && !strings.HasPrefix(query, key) {
			continue
		}
		diff := utf8.RuneCountInString(key) - queryLen
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = key, diff
		}
	}

	return best, bestDiff >= 0
}

func stripStationSuffix(name string) string {
	for _, suffix := range stationSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(name, suffix))
		}
	}
	return name
}
