// Package transit reports the operational status of every known railway line.
package transit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/railway"
)

// Provider defines the interface for train information providers.
type Provider interface {
	// TrainInformation fetches the current live reports. Lines running
	// normally may be absent.
	TrainInformation(ctx context.Context) ([]*Report, error)

	// Name returns the provider name for logging.
	Name() string
}

// LineCatalog lists every known line. The railway index implements it.
type LineCatalog interface {
	Railways(ctx context.Context) ([]railway.Ref, error)
}

// ServiceConfig holds configuration for the transit service.
type ServiceConfig struct {
	// Provider is the train information provider.
	Provider Provider

	// Catalog supplies the full line universe (optional).
	// Without it, only lines the provider reports on are returned.
	Catalog LineCatalog

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache statuses (default: 60 seconds).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 10 minutes).
	StaleIfErrorTTL time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Service provides railway statuses with caching.
type Service struct {
	provider        Provider
	catalog         LineCatalog
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	now             func() time.Time

	mu          sync.RWMutex
	statusCache *cachedStatuses
}

type cachedStatuses struct {
	statuses  []*RailwayStatus
	byID      map[string]*RailwayStatus
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new transit service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 10 * time.Minute
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		provider:        cfg.Provider,
		catalog:         cfg.Catalog,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		now:             now,
	}
}

// FetchAllStatuses returns the status of every known line. Lines without a
// live report are returned as normal.
func (s *Service) FetchAllStatuses(ctx context.Context) ([]*RailwayStatus, error) {
	s.mu.RLock()
	if s.statusCache != nil && s.now().Before(s.statusCache.expiresAt) {
		statuses := s.statusCache.statuses
		s.mu.RUnlock()
		return statuses, nil
	}
	s.mu.RUnlock()

	cached, err := s.fetchStatuses(ctx)
	if err != nil {
		return nil, err
	}
	return cached.statuses, nil
}

// StatusFor returns the status of a single line.
func (s *Service) StatusFor(ctx context.Context, railwayID string) (*RailwayStatus, error) {
	s.mu.RLock()
	cached := s.statusCache
	s.mu.RUnlock()

	if cached == nil || !s.now().Before(cached.expiresAt) {
		var err error
		if cached, err = s.fetchStatuses(ctx); err != nil {
			return nil, err
		}
	}

	if st, ok := cached.byID[railwayID]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRailwayNotFound, railwayID)
}

// fetchStatuses fetches from the provider and updates the cache.
func (s *Service) fetchStatuses(ctx context.Context) (*cachedStatuses, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache
	if s.statusCache != nil && s.now().Before(s.statusCache.expiresAt) {
		return s.statusCache, nil
	}

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Msg("fetching train information from provider")

	reports, err := s.provider.TrainInformation(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch train information")

		if s.statusCache != nil {
			if s.now().Before(s.statusCache.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", s.statusCache.fetchedAt).
					Msg("serving stale status data due to provider error")
				return s.statusCache, nil
			}
		}

		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	var lines []railway.Ref
	if s.catalog != nil {
		lines, err = s.catalog.Railways(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("line catalog unavailable, using reported lines only")
			lines = nil
		}
	}

	now := s.now()
	statuses := Merge(lines, reports, now)

	byID := make(map[string]*RailwayStatus, len(statuses))
	for _, st := range statuses {
		byID[st.RailwayID] = st
	}

	s.statusCache = &cachedStatuses{
		statuses:  statuses,
		byID:      byID,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.logger.Info().
		Int("lines", len(statuses)).
		Int("reports", len(reports)).
		Msg("status cache refreshed")

	return s.statusCache, nil
}

// Merge builds the status universe: every catalog line in catalog order, then
// lines only the provider mentions in report order. When a line has several
// reports the most severe one wins. Lines without a report are normal.
func Merge(lines []railway.Ref, reports []*Report, now time.Time) []*RailwayStatus {
	reportByID := make(map[string]*RailwayStatus, len(reports))
	var reportOrder []string

	for _, r := range reports {
		if r == nil || r.RailwayID == "" {
			continue
		}
		st := fromReport(r, now)
		prev, ok := reportByID[r.RailwayID]
		if !ok {
			reportOrder = append(reportOrder, r.RailwayID)
			reportByID[r.RailwayID] = st
			continue
		}
		if st.Status.Severity() > prev.Status.Severity() {
			reportByID[r.RailwayID] = st
		}
	}

	statuses := make([]*RailwayStatus, 0, len(lines)+len(reportOrder))
	seen := make(map[string]struct{}, len(lines)+len(reportOrder))

	for _, line := range lines {
		if _, dup := seen[line.RailwayID]; dup || line.RailwayID == "" {
			continue
		}
		seen[line.RailwayID] = struct{}{}

		st, ok := reportByID[line.RailwayID]
		if !ok {
			statuses = append(statuses, &RailwayStatus{
				RailwayID:   line.RailwayID,
				RailwayName: line.RailwayName,
				Operator:    line.Operator,
				Status:      StatusNormal,
				StatusText:  NormalStatusText,
				UpdatedAt:   now,
			})
			continue
		}
		if st.RailwayName == "" {
			st.RailwayName = line.RailwayName
		}
		if st.Operator == "" {
			st.Operator = line.Operator
		}
		statuses = append(statuses, st)
	}

	for _, id := range reportOrder {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		statuses = append(statuses, reportByID[id])
	}

	return statuses
}

func fromReport(r *Report, now time.Time) *RailwayStatus {
	status := Classify(r.State, r.Text)

	text := r.Text
	if text == "" {
		text = r.State
	}
	if text == "" && status.IsNormal() {
		text = NormalStatusText
	}

	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	return &RailwayStatus{
		RailwayID:   r.RailwayID,
		RailwayName: r.RailwayName,
		Operator:    r.Operator,
		Status:      status,
		StatusText:  text,
		Cause:       r.Cause,
		UpdatedAt:   updatedAt,
	}
}

// InvalidateCache clears cached statuses.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCache = nil
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := CacheStats{
		Provider: s.provider.Name(),
	}

	if s.statusCache != nil {
		stats.HasStatusCache = true
		stats.StatusCacheFresh = s.now().Before(s.statusCache.expiresAt)
		stats.LineCount = len(s.statusCache.statuses)
		for _, st := range s.statusCache.statuses {
			if !st.Status.IsNormal() {
				stats.AffectedLines++
			}
		}
		fetchedAt := s.statusCache.fetchedAt
		stats.FetchedAt = &fetchedAt
	}

	return stats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Provider         string
	HasStatusCache   bool
	StatusCacheFresh bool
	LineCount        int
	AffectedLines    int
	FetchedAt        *time.Time
}
