package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api/models"
	"github.com/commutedeck/commutedeck/internal/api/response"
	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/nearby"
)

// Aggregator runs the nearby pipeline once.
type Aggregator interface {
	Aggregate(ctx context.Context, center geo.Coordinates) (*nearby.Result, error)
}

// NearbyHandler serves the one-shot aggregation endpoint.
type NearbyHandler struct {
	aggregator Aggregator
	logger     zerolog.Logger
}

// NewNearbyHandler creates a new NearbyHandler.
func NewNearbyHandler(aggregator Aggregator, logger zerolog.Logger) *NearbyHandler {
	return &NearbyHandler{aggregator: aggregator, logger: logger}
}

// Nearby handles GET /v1/nearby - closest stations with live line status.
func (h *NearbyHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	center, err := parseCoordinates(r)
	if err != nil {
		response.BadRequest(w, r, err.Error())
		return
	}

	result, err := h.aggregator.Aggregate(r.Context(), center)
	if err != nil {
		writeDomainError(w, r, h.logger, "nearby aggregation failed", err)
		return
	}

	response.OK(w, r, models.NewNearby(result))
}
