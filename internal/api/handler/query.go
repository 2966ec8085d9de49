package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/commutedeck/commutedeck/internal/geo"
)

// Query validation errors.
var (
	errMissingCoordinates = errors.New("lat and lng are required")
	errInvalidLat         = errors.New("lat must be a number between -90 and 90")
	errInvalidLng         = errors.New("lng must be a number between -180 and 180")
)

// parseCoordinates reads the lat and lng query parameters.
func parseCoordinates(r *http.Request) (geo.Coordinates, error) {
	q := r.URL.Query()
	latStr, lngStr := q.Get("lat"), q.Get("lng")
	if latStr == "" || lngStr == "" {
		return geo.Coordinates{}, errMissingCoordinates
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return geo.Coordinates{}, errInvalidLat
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return geo.Coordinates{}, errInvalidLng
	}

	return geo.Coordinates{Lat: lat, Lng: lng}, nil
}

// parseIntParam reads an optional positive integer query parameter.
func parseIntParam(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return 0, fmt.Errorf("%s must be an integer between 1 and %d", name, max)
	}
	return v, nil
}

// parseNames splits a comma separated list, trimming blanks and duplicates
// while keeping the first occurrence order.
func parseNames(raw string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
