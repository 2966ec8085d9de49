package main

import (
	"fmt"
	"io"
	"time"

	"github.com/commutedeck/commutedeck/internal/nearby"
	"github.com/commutedeck/commutedeck/internal/transit"
)

var statusLabels = map[transit.Status]string{
	transit.StatusNormal:  "OK",
	transit.StatusDelay:   "DELAY",
	transit.StatusSuspend: "SUSPENDED",
	transit.StatusDirect:  "NO THROUGH SERVICE",
	transit.StatusRestore: "RESUMED",
}

// render writes one dashboard frame for snap.
func render(w io.Writer, snap nearby.Snapshot) {
	if snap.LocationError != "" {
		fmt.Fprintln(w, snap.LocationError)
		return
	}
	if snap.StationError != "" {
		fmt.Fprintln(w, snap.StationError)
		return
	}
	if snap.Location != nil {
		fmt.Fprintf(w, "Near %.5f, %.5f\n", snap.Location.Lat, snap.Location.Lng)
	}
	if len(snap.Stations) == 0 {
		fmt.Fprintln(w, "No stations nearby.")
		return
	}

	for _, s := range snap.Stations {
		fmt.Fprintf(w, "\n%s (%s)\n", s.Station.Name, formatDistance(s.Station.DistanceMeters))
		if len(s.RailwayStatuses) == 0 {
			fmt.Fprintln(w, "  no line information")
			continue
		}
		for _, rs := range s.RailwayStatuses {
			fmt.Fprintf(w, "  %-24s %s", rs.RailwayName, statusLabel(rs.Status))
			if rs.StatusText != "" && !rs.Status.IsNormal() {
				fmt.Fprintf(w, "  %s", rs.StatusText)
			}
			fmt.Fprintln(w)
		}
	}

	if !snap.LastUpdated.IsZero() {
		fmt.Fprintf(w, "\nUpdated %s\n", snap.LastUpdated.Local().Format(time.Kitchen))
	}
}

func statusLabel(s transit.Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
