// Package handler provides HTTP handlers for the commutedeck API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/commutedeck/commutedeck/internal/api/models"
	"github.com/commutedeck/commutedeck/internal/api/response"
	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// IndexInspector exposes railway index statistics.
type IndexInspector interface {
	Stats() railway.IndexStats
}

// StationCacheInspector exposes station cache statistics.
type StationCacheInspector interface {
	CacheStats() station.CacheStats
}

// StatusCacheInspector exposes status cache statistics.
type StatusCacheInspector interface {
	CacheStats() transit.CacheStats
}

// ReadyCheck reports whether a dependency is ready to serve traffic.
type ReadyCheck func(ctx context.Context) error

// OpsConfig holds the dependencies of the ops endpoints. Every field except
// Version and BuildTime is optional.
type OpsConfig struct {
	Version     string
	BuildTime   string
	Registry    *resilience.Registry
	Index       IndexInspector
	Stations    StationCacheInspector
	Statuses    StatusCacheInspector
	ReadyChecks map[string]ReadyCheck
	Now         func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, r, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.cfg.ReadyChecks))
	for name := range h.cfg.ReadyChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	details := make(map[string]interface{}, len(names))
	for _, name := range names {
		if err := h.cfg.ReadyChecks[name](r.Context()); err != nil {
			failed = append(failed, name)
			details[name] = err.Error()
			continue
		}
		details[name] = "ok"
	}

	if len(failed) > 0 {
		response.ServiceUnavailable(w, r, "not ready: "+strings.Join(failed, ", "))
		return
	}

	response.OK(w, r, models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(h.cfg.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - provider, index and cache status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.cfg.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.cfg.Registry != nil {
		for _, ph := range h.cfg.Registry.Snapshot() {
			ps := providerStatus(ph)
			status.Providers = append(status.Providers, ps)
			status.Status = worst(status.Status, ps.Status)
		}
	}

	if h.cfg.Index != nil {
		stats := h.cfg.Index.Stats()
		idx := &models.IndexStatus{
			Source:       stats.Source,
			Built:        stats.Built,
			Fresh:        stats.Fresh,
			Builds:       stats.Builds,
			Failures:     stats.Failures,
			LastError:    stats.LastError,
			StationNames: stats.StationNames,
			Railways:     stats.Railways,
		}
		if stats.BuiltAt != nil {
			idx.BuiltAt = models.TimestampPtr(*stats.BuiltAt)
		}
		status.RailwayIndex = idx

		sub := models.SubsystemStatus{Name: "railway-index", Status: models.HealthStatusOK}
		if !stats.Built && stats.LastError != "" {
			sub.Status = models.HealthStatusDegraded
			detail := stats.LastError
			sub.Detail = &detail
		}
		status.Subsystems = append(status.Subsystems, sub)
		status.Status = worst(status.Status, sub.Status)
	}

	if h.cfg.Stations != nil {
		stats := h.cfg.Stations.CacheStats()
		status.Caches = append(status.Caches, models.CacheStatus{
			Name:         "stations",
			Provider:     stats.Provider,
			Entries:      stats.Entries,
			FreshEntries: stats.FreshEntries,
		})
	}

	if h.cfg.Statuses != nil {
		stats := h.cfg.Statuses.CacheStats()
		cs := models.CacheStatus{
			Name:     "train-info",
			Provider: stats.Provider,
			Entries:  stats.LineCount,
		}
		if stats.StatusCacheFresh {
			cs.FreshEntries = stats.LineCount
		}
		if stats.FetchedAt != nil {
			cs.FetchedAt = models.TimestampPtr(*stats.FetchedAt)
		}
		status.Caches = append(status.Caches, cs)
	}

	response.OK(w, r, status)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        ph.CircuitState.String(),
		ConsecutiveFailures: ph.ConsecutiveFailures,
	}
	if ph.CircuitChangedAt != nil {
		ps.CircuitChangedAt = models.TimestampPtr(*ph.CircuitChangedAt)
	}
	switch ph.Level() {
	case resilience.LevelUnhealthy:
		ps.Status = models.HealthStatusFail
	case resilience.LevelDegraded:
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*ph.LastSuccessAt)
	}
	if ph.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*ph.LastFailureAt)
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

// worst folds provider and subsystem health into the overall status. A failed
// provider only degrades the service since stale caches keep serving.
func worst(current, next models.HealthStatus) models.HealthStatus {
	if next == models.HealthStatusOK || current == models.HealthStatusDegraded {
		return current
	}
	return models.HealthStatusDegraded
}
