package nearby

// SideTableRailways returns the railway ids cached for stationID.
func SideTableRailways(s *Session, stationID string) ([]string, bool) {
	v, err := s.sideTable.Get(stationID)
	if err != nil {
		return nil, false
	}
	ids, ok := v.([]string)
	return ids, ok
}
