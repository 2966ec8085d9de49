package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api/middleware"
	"github.com/commutedeck/commutedeck/internal/api/models"
	"github.com/commutedeck/commutedeck/internal/api/response"
	"github.com/commutedeck/commutedeck/internal/railway"
)

// IndexRebuilder rebuilds the railway reverse-index on demand.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
	Stats() railway.IndexStats
}

// CacheInvalidator drops a service cache.
type CacheInvalidator interface {
	InvalidateCache()
}

// AdminHandler handles the authenticated maintenance endpoints.
type AdminHandler struct {
	index  IndexRebuilder
	caches map[string]CacheInvalidator
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler. caches maps a cache name, as
// accepted by the invalidate endpoint, to its owner.
func NewAdminHandler(index IndexRebuilder, caches map[string]CacheInvalidator, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{index: index, caches: caches, logger: logger}
}

// RebuildRailwayIndex handles POST /v1/admin/railway-index/rebuild.
func (h *AdminHandler) RebuildRailwayIndex(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		response.ServiceUnavailable(w, r, "railway index is not configured")
		return
	}

	if err := h.index.Rebuild(r.Context()); err != nil {
		writeDomainError(w, r, h.logger, "railway index rebuild failed", err)
		return
	}

	stats := h.index.Stats()
	result := models.RebuildResult{
		StationNames: stats.StationNames,
		Railways:     stats.Railways,
	}
	if stats.BuiltAt != nil {
		result.BuiltAt = models.Timestamp(*stats.BuiltAt)
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Int("station_names", stats.StationNames).
		Int("railways", stats.Railways).
		Msg("railway index rebuilt")

	response.OK(w, r, result)
}

// InvalidateCaches handles POST /v1/admin/cache/invalidate. The optional
// cache query parameter selects one cache; all caches are dropped otherwise.
func (h *AdminHandler) InvalidateCaches(w http.ResponseWriter, r *http.Request) {
	selected := r.URL.Query().Get("cache")

	var names []string
	if selected != "" {
		if _, ok := h.caches[selected]; !ok {
			response.BadRequest(w, r, "unknown cache: "+selected)
			return
		}
		names = []string{selected}
	} else {
		names = make([]string, 0, len(h.caches))
		for name := range h.caches {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	for _, name := range names {
		h.caches[name].InvalidateCache()
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Strs("caches", names).
		Msg("caches invalidated")

	response.OK(w, r, models.InvalidateResult{Invalidated: names})
}
