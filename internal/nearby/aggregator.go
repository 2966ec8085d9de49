package nearby

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/telemetry"
	"github.com/commutedeck/commutedeck/internal/transit"
)

const tracerName = "commutedeck/nearby"

// Defaults for discovery.
const (
	DefaultRadiusMeters = station.DefaultRadiusMeters
	DefaultMaxStations  = 3
)

// ErrNoStationSource is returned when the aggregator has no station finder.
var ErrNoStationSource = errors.New("no station source configured")

// Config holds configuration for the aggregator.
type Config struct {
	Stations StationFinder
	Railways RailwayResolver
	Statuses StatusFetcher

	// Logger for aggregation steps.
	Logger zerolog.Logger

	// RadiusMeters is the discovery radius (default: 3000).
	RadiusMeters int

	// MaxStations caps the ranked station list (default: 3).
	MaxStations int

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Aggregator runs the discover, resolve and attach steps. It holds no
// per-user state; Session adds that.
type Aggregator struct {
	stations     StationFinder
	railways     RailwayResolver
	statuses     StatusFetcher
	logger       zerolog.Logger
	radiusMeters int
	maxStations  int
	now          func() time.Time
	tracer       trace.Tracer
}

// NewAggregator creates a new aggregator.
func NewAggregator(cfg Config) *Aggregator {
	radius := cfg.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}

	maxStations := cfg.MaxStations
	if maxStations <= 0 {
		maxStations = DefaultMaxStations
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		stations:     cfg.Stations,
		railways:     cfg.Railways,
		statuses:     cfg.Statuses,
		logger:       cfg.Logger,
		radiusMeters: radius,
		maxStations:  maxStations,
		now:          now,
		tracer:       telemetry.Tracer(tracerName),
	}
}

// Aggregate runs every step for center. Station discovery errors are
// returned; resolution and status errors only empty the affected data.
// When no station is found the status source is not called.
func (a *Aggregator) Aggregate(ctx context.Context, center geo.Coordinates) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "nearby.aggregate")
	defer span.End()

	stations, err := a.Discover(ctx, center)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discover")
		return nil, err
	}

	result := &Result{
		Location: center,
		Stations: []StationWithStatus{},
	}
	if len(stations) == 0 {
		return result, nil
	}

	table := a.Resolve(ctx, stations)
	result.Stations, result.LastUpdated = a.Attach(ctx, stations, table)
	return result, nil
}

// Discover finds stations within the configured radius, ranked by distance and
// truncated to the configured maximum.
func (a *Aggregator) Discover(ctx context.Context, center geo.Coordinates) ([]station.NearbyStation, error) {
	if a.stations == nil {
		return nil, ErrNoStationSource
	}

	ctx, span := a.tracer.Start(ctx, "nearby.discover")
	defer span.End()

	raw, err := a.stations.FindStations(ctx, center, a.radiusMeters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find stations")
		return nil, err
	}

	ranked := station.Rank(center, raw, a.maxStations)
	span.SetAttributes(
		attribute.Int("stations.found", len(raw)),
		attribute.Int("stations.kept", len(ranked)),
	)
	return ranked, nil
}

// Resolve looks up the lines for every station in one batched call and
// returns station id to railway ids. Failures yield an empty table.
func (a *Aggregator) Resolve(ctx context.Context, stations []station.NearbyStation) map[string][]string {
	table := make(map[string][]string, len(stations))
	if len(stations) == 0 || a.railways == nil {
		return table
	}

	ctx, span := a.tracer.Start(ctx, "nearby.resolve")
	defer span.End()

	names := make([]string, 0, len(stations))
	seen := make(map[string]struct{}, len(stations))
	for _, s := range stations {
		if _, dup := seen[s.Name]; dup {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}

	resolved, err := a.railways.ResolveRailways(ctx, names)
	if err != nil {
		span.RecordError(err)
		a.logger.Warn().Err(err).Strs("names", names).Msg("railway resolution failed")
		return table
	}

	for _, s := range stations {
		refs := resolved[s.Name]
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.RailwayID)
		}
		table[s.ID] = ids
	}
	return table
}

// Attach fetches every line status and joins it onto the stations using table.
// It returns the fetch time, or the zero time when the fetch failed; in that
// case every station carries an empty status list.
func (a *Aggregator) Attach(ctx context.Context, stations []station.NearbyStation, table map[string][]string) ([]StationWithStatus, time.Time) {
	out := make([]StationWithStatus, len(stations))
	for i, s := range stations {
		out[i] = StationWithStatus{Station: s, RailwayStatuses: []transit.RailwayStatus{}}
	}
	if len(stations) == 0 || a.statuses == nil {
		return out, time.Time{}
	}

	ctx, span := a.tracer.Start(ctx, "nearby.attach")
	defer span.End()

	statuses, err := a.statuses.FetchAllStatuses(ctx)
	if err != nil {
		span.RecordError(err)
		a.logger.Warn().Err(err).Msg("status fetch failed")
		return out, time.Time{}
	}

	for i, s := range stations {
		out[i].RailwayStatuses = MatchStatuses(table[s.ID], statuses)
	}
	span.SetAttributes(attribute.Int("statuses.total", len(statuses)))
	return out, a.now()
}
