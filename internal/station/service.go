package station

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/commutedeck/commutedeck/internal/geo"
)

// Provider returns raw station points around a center.
type Provider interface {
	// StationsNear returns stations within radiusMeters of center.
	StationsNear(ctx context.Context, center geo.Coordinates, radiusMeters int) ([]Station, error)

	Name() string
}

// ServiceConfig configures Service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long a lookup stays fresh (default: 10 minutes).
	// Stations rarely move, but the cache is keyed by a rounded center.
	CacheTTL time.Duration

	// StaleIfErrorTTL is how long a lookup may still be served when the
	// provider fails (default: 30 minutes). Entries are evicted after it.
	StaleIfErrorTTL time.Duration

	// MaxEntries bounds the number of cached lookups (default: 1024).
	MaxEntries int

	// FetchTimeout bounds one provider call (default: 30 seconds). The call
	// is shared by every waiter, so it does not follow any caller's context.
	FetchTimeout time.Duration

	// Now overrides the clock used for freshness (tests).
	Now func() time.Time
}

// Service looks up stations through a bounded cache. Concurrent lookups for
// the same rounded center share one provider call.
type Service struct {
	provider     Provider
	logger       zerolog.Logger
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	cache gcache.Cache
	group singleflight.Group
}

type cachedStations struct {
	stations  []Station
	fetchedAt time.Time
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.StaleIfErrorTTL == 0 {
		cfg.StaleIfErrorTTL = 30 * time.Minute
	}
	cfg.StaleIfErrorTTL = max(cfg.StaleIfErrorTTL, cfg.CacheTTL)
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		provider:     cfg.Provider,
		logger:       cfg.Logger,
		cacheTTL:     cfg.CacheTTL,
		fetchTimeout: cfg.FetchTimeout,
		now:          cfg.Now,
		cache: gcache.New(cfg.MaxEntries).
			LRU().
			Expiration(cfg.StaleIfErrorTTL).
			Clock(clockFunc(cfg.Now)).
			Build(),
	}
}

// clockFunc lets the cache expire entries on the service's clock.
type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// FindStations returns the raw stations within radiusMeters of center.
//
// Lookups are cached per rounded center. The provider is queried around the
// cell center with the radius widened by bucketSlackMeters, and the result is
// filtered against the exact center on every return.
func (s *Service) FindStations(ctx context.Context, center geo.Coordinates, radiusMeters int) ([]Station, error) {
	if radiusMeters <= 0 {
		return nil, ErrInvalidRadius
	}
	if !center.Valid() {
		return nil, ErrInvalidCoordinates
	}

	cell := bucket(center)
	key := cacheKey(cell, radiusMeters)
	if cached, ok := s.lookup(key); ok && s.fresh(cached) {
		return within(center, cached.stations, radiusMeters), nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		if cached, ok := s.lookup(key); ok && s.fresh(cached) {
			return cached.stations, nil
		}
		return s.fetch(context.WithoutCancel(ctx), cell, radiusMeters, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return within(center, res.Val.([]Station), radiusMeters), nil
	}
}

// Nearby returns stations around center ranked by distance, keeping at most limit.
func (s *Service) Nearby(ctx context.Context, center geo.Coordinates, radiusMeters, limit int) ([]NearbyStation, error) {
	stations, err := s.FindStations(ctx, center, radiusMeters)
	if err != nil {
		return nil, err
	}
	return Rank(center, stations, limit), nil
}

// fetch queries the provider around the cell center and caches the widened
// result under key.
func (s *Service) fetch(ctx context.Context, cell geo.Coordinates, radiusMeters int, key string) ([]Station, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Str("key", key).
		Msg("querying station provider")

	stations, err := s.provider.StationsNear(ctx, cell, radiusMeters+bucketSlackMeters)
	if err == nil {
		_ = s.cache.Set(key, cachedStations{stations: stations, fetchedAt: s.now()}) //nolint:errcheck // only fails with a loader
		return stations, nil
	}

	// Entries past the stale window have already expired out of the cache.
	if cached, ok := s.lookup(key); ok {
		s.logger.Warn().Err(err).
			Str("key", key).
			Dur("age", s.now().Sub(cached.fetchedAt)).
			Msg("station provider failed, serving cached stations")
		return cached.stations, nil
	}

	s.logger.Error().Err(err).Str("key", key).Msg("station provider failed")
	return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

func (s *Service) lookup(key string) (cachedStations, bool) {
	v, err := s.cache.Get(key)
	if err != nil {
		return cachedStations{}, false
	}
	c, ok := v.(cachedStations)
	return c, ok
}

func (s *Service) fresh(c cachedStations) bool {
	return s.now().Before(c.fetchedAt.Add(s.cacheTTL))
}

// InvalidateCache drops every cached lookup.
func (s *Service) InvalidateCache() {
	s.cache.Purge()
}

// CacheStats reports cache occupancy for the ops endpoint.
func (s *Service) CacheStats() CacheStats {
	stats := CacheStats{Provider: s.provider.Name()}
	for _, v := range s.cache.GetALL(true) {
		c, ok := v.(cachedStations)
		if !ok {
			continue
		}
		stats.Entries++
		if s.fresh(c) {
			stats.FreshEntries++
		}
	}
	return stats
}

type CacheStats struct {
	Provider     string
	Entries      int
	FreshEntries int
}

// bucketSlackMeters covers the distance from any center to its rounded cell
// center: half a 0.001° cell diagonal is under 79 m at any latitude.
const bucketSlackMeters = 80

// bucket rounds center to a 0.001° cell (roughly 100 m) so nearby lookups
// share a cache entry.
func bucket(center geo.Coordinates) geo.Coordinates {
	return geo.Coordinates{
		Lat: math.Round(center.Lat*1000) / 1000,
		Lng: math.Round(center.Lng*1000) / 1000,
	}
}

func cacheKey(cell geo.Coordinates, radiusMeters int) string {
	return fmt.Sprintf("%.3f:%.3f:%d", cell.Lat, cell.Lng, radiusMeters)
}

// within returns the stations no farther than radiusMeters from center.
func within(center geo.Coordinates, stations []Station, radiusMeters int) []Station {
	out := make([]Station, 0, len(stations))
	for _, st := range stations {
		if geo.Distance(center, st.Location) <= float64(radiusMeters) {
			out = append(out, st)
		}
	}
	return out
}
