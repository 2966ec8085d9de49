package railway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/commutedeck/commutedeck/internal/telemetry"
)

const buildKey = "railway-index"

// IndexConfig holds configuration for the railway index.
type IndexConfig struct {
	// Source provides the bulk line dump.
	Source LineSource

	// Logger for index operations.
	Logger zerolog.Logger

	// TTL is how long a built index is used before the next call rebuilds it
	// (default: 24 hours).
	TTL time.Duration

	// BuildTimeout bounds one rebuild (default: 30 seconds). The build does not
	// inherit the cancellation of the caller that started it.
	BuildTimeout time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Index maps station names to the railway lines serving them.
// A snapshot is either absent or fully built; concurrent callers that find it
// missing or expired share a single rebuild.
type Index struct {
	source       LineSource
	logger       zerolog.Logger
	ttl          time.Duration
	buildTimeout time.Duration
	now          func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	snap      *snapshot
	builds    int
	failures  int
	lastError string
}

// NewIndex creates an empty index. Nothing is fetched until the first lookup.
func NewIndex(cfg IndexConfig) *Index {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	buildTimeout := cfg.BuildTimeout
	if buildTimeout == 0 {
		buildTimeout = 30 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Index{
		source:       cfg.Source,
		logger:       cfg.Logger,
		ttl:          ttl,
		buildTimeout: buildTimeout,
		now:          now,
	}
}

// ResolveRailways returns the lines serving each requested name. Every name
// gets an entry; unresolvable names map to an empty list. An error is returned
// only when the index had to be rebuilt and the rebuild failed.
func (idx *Index) ResolveRailways(ctx context.Context, names []string) (map[string][]Ref, error) {
	snap, err := idx.get(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]Ref, len(names))
	for _, name := range names {
		refs := snap.lookup(name)
		out := make([]Ref, len(refs))
		copy(out, refs)
		result[name] = out
	}
	return result, nil
}

// Railways returns every line in the index, in source order.
func (idx *Index) Railways(ctx context.Context) ([]Ref, error) {
	snap, err := idx.get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Ref, len(snap.railways))
	copy(out, snap.railways)
	return out, nil
}

// Invalidate discards the current snapshot so the next call rebuilds it.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap = nil
}

// Rebuild discards the current snapshot and builds a new one immediately.
func (idx *Index) Rebuild(ctx context.Context) error {
	idx.Invalidate()
	_, err := idx.get(ctx)
	return err
}

// get returns a fresh snapshot, rebuilding it when absent or expired.
func (idx *Index) get(ctx context.Context) (*snapshot, error) {
	if snap := idx.fresh(); snap != nil {
		return snap, nil
	}

	ch := idx.group.DoChan(buildKey, func() (interface{}, error) {
		// Another flight may have finished between fresh() and DoChan.
		if snap := idx.fresh(); snap != nil {
			return snap, nil
		}
		return idx.build(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot), nil
	}
}

func (idx *Index) fresh() *snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.snap != nil && idx.now().Sub(idx.snap.builtAt) < idx.ttl {
		return idx.snap
	}
	return nil
}

func (idx *Index) build(ctx context.Context) (*snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, idx.buildTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer("commutedeck/railway").Start(ctx, "railway.index.build")
	defer span.End()

	started := idx.now()
	idx.logger.Debug().
		Str("source", idx.source.Name()).
		Msg("building railway index")

	lines, err := idx.source.FetchLines(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch lines")

		idx.mu.Lock()
		idx.failures++
		idx.lastError = err.Error()
		idx.mu.Unlock()

		idx.logger.Error().Err(err).Msg("failed to build railway index")
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	snap := buildSnapshot(lines, idx.now())
	span.SetAttributes(
		attribute.Int("railway.lines", len(snap.railways)),
		attribute.Int("railway.names", len(snap.names)),
	)

	idx.mu.Lock()
	idx.snap = snap
	idx.builds++
	idx.lastError = ""
	idx.mu.Unlock()

	idx.logger.Info().
		Int("lines", len(snap.railways)).
		Int("names", len(snap.names)).
		Dur("took", idx.now().Sub(started)).
		Msg("railway index built")

	return snap, nil
}

// Stats returns index statistics.
func (idx *Index) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := IndexStats{
		Source:    idx.source.Name(),
		Builds:    idx.builds,
		Failures:  idx.failures,
		LastError: idx.lastError,
	}
	if idx.snap != nil {
		builtAt := idx.snap.builtAt
		stats.Built = true
		stats.BuiltAt = &builtAt
		stats.Fresh = idx.now().Sub(builtAt) < idx.ttl
		stats.StationNames = len(idx.snap.names)
		stats.Railways = len(idx.snap.railways)
	}
	return stats
}

// IndexStats contains index statistics.
type IndexStats struct {
	Source       string
	Built        bool
	Fresh        bool
	BuiltAt      *time.Time
	Builds       int
	Failures     int
	LastError    string
	StationNames int
	Railways     int
}
