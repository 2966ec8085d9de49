package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api/models"
	"github.com/commutedeck/commutedeck/internal/api/response"
	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// MaxStationNames caps the names accepted by the station-railways endpoint.
const MaxStationNames = 20

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

// TransitHandler serves the station lookup, station to railway resolution and
// train information endpoints.
type TransitHandler struct {
	stations StationFinder
	railways RailwayResolver
	statuses StatusFetcher
	logger   zerolog.Logger
}

// NewTransitHandler creates a new TransitHandler.
func NewTransitHandler(stations StationFinder, railways RailwayResolver, statuses StatusFetcher, logger zerolog.Logger) *TransitHandler {
	return &TransitHandler{
		stations: stations,
		railways: railways,
		statuses: statuses,
		logger:   logger,
	}
}

// NearbyStations handles GET /v1/nearby-stations - stations around a point.
func (h *TransitHandler) NearbyStations(w http.ResponseWriter, r *http.Request) {
	center, err := parseCoordinates(r)
	if err != nil {
		response.BadRequest(w, r, err.Error())
		return
	}
	radius, err := parseIntParam(r, "radius", station.DefaultRadiusMeters, station.MaxRadiusMeters)
	if err != nil {
		response.BadRequest(w, r, err.Error())
		return
	}

	stations, err := h.stations.FindStations(r.Context(), center, radius)
	if err != nil {
		h.writeError(w, r, "station lookup failed", err)
		return
	}

	data := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		data = append(data, models.NewStation(s))
	}
	response.List(w, r, data, len(data))
}

// StationRailways handles GET /v1/station-railways - lines serving each name.
func (h *TransitHandler) StationRailways(w http.ResponseWriter, r *http.Request) {
	names := parseNames(r.URL.Query().Get("names"))
	if len(names) == 0 {
		response.BadRequest(w, r, "names is required")
		return
	}
	if len(names) > MaxStationNames {
		response.BadRequest(w, r, "at most 20 station names are allowed")
		return
	}

	resolved, err := h.railways.ResolveRailways(r.Context(), names)
	if err != nil {
		h.writeError(w, r, "railway resolution failed", err)
		return
	}

	data := make([]models.StationRailways, 0, len(names))
	for _, name := range names {
		data = append(data, models.NewStationRailways(name, resolved[name]))
	}
	response.List(w, r, data, len(data))
}

// TrainInfo handles GET /v1/train-info - status of every known line.
func (h *TransitHandler) TrainInfo(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.statuses.FetchAllStatuses(r.Context())
	if err != nil {
		h.writeError(w, r, "train information fetch failed", err)
		return
	}

	data := make([]models.TrainInfo, 0, len(statuses))
	for _, s := range statuses {
		data = append(data, models.NewTrainInfo(*s))
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	response.List(w, r, data, len(data))
}

// writeError maps domain errors onto status codes.
func (h *TransitHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	writeDomainError(w, r, h.logger, msg, err)
}

func writeDomainError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, station.ErrInvalidRadius), errors.Is(err, station.ErrInvalidCoordinates):
		response.BadRequest(w, r, err.Error())
	case errors.Is(err, station.ErrProviderUnavailable),
		errors.Is(err, transit.ErrProviderUnavailable),
		errors.Is(err, railway.ErrIndexUnavailable):
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg(msg)
		response.BadGateway(w, r, "upstream data source is unavailable")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		logger.Debug().Err(err).Str("path", r.URL.Path).Msg(msg)
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
