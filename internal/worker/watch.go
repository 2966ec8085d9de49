package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/commutedeck/commutedeck/internal/notify"
	"github.com/commutedeck/commutedeck/internal/statusstore"
	"github.com/commutedeck/commutedeck/internal/telemetry"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// ErrNoStatusSource is returned when the job has nothing to fetch from.
var ErrNoStatusSource = errors.New("no status source configured")

// StatusSource returns the status of every known line.
type StatusSource interface {
	FetchAllStatuses(ctx context.Context) ([]*transit.RailwayStatus, error)
}

// WatchJob compares the live railway statuses with the stored ones and
// reports the differences.
type WatchJob struct {
	config   WatchConfig
	watch    map[string]struct{}
	source   StatusSource
	store    statusstore.Repository
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	// runMu serializes runs so ticker and Pub/Sub triggers never interleave.
	runMu sync.Mutex

	metrics     *WatchMetrics
	instruments *watchInstruments
	tracer      trace.Tracer
}

// WatchMetrics tracks watch job statistics.
type WatchMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns           int64
	FailedRuns          int64
	ChangesDetected     int64
	NotificationsFailed int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// WatchJobConfig holds configuration for creating a WatchJob.
type WatchJobConfig struct {
	Config   WatchConfig
	Source   StatusSource
	Store    statusstore.Repository
	Notifier notify.Notifier
	Logger   zerolog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// NewWatchJob creates a new watch job. A nil Store keeps records in memory.
func NewWatchJob(cfg WatchJobConfig) *WatchJob {
	config := cfg.Config.withDefaults()

	store := cfg.Store
	if store == nil {
		store = statusstore.NewInMemoryRepository()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	instruments, err := newWatchInstruments()
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("watch instruments unavailable")
	}

	return &WatchJob{
		config:      config,
		watch:       config.watchSet(),
		source:      cfg.Source,
		store:       store,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		now:         now,
		metrics:     &WatchMetrics{},
		instruments: instruments,
		tracer:      telemetry.Tracer(instrumentationName),
	}
}

// WatchResult contains the result of one run.
type WatchResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Fetched is the number of railways in the feed, Watched the number
	// left after the watch list was applied.
	Fetched int
	Watched int

	Changes []notify.Change

	// NotifyError is set when delivery failed. Records are saved regardless.
	NotifyError error
}

// Run fetches the statuses, detects changes against the store, saves the new
// records and hands the changes to the notifier. A fetch or persistence
// failure fails the run; a notifier failure does not.
func (j *WatchJob) Run(ctx context.Context) (*WatchResult, error) {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	ctx, span := j.tracer.Start(ctx, "worker.watch")
	defer span.End()

	result := &WatchResult{StartTime: j.now()}

	err := j.run(ctx, result)

	result.EndTime = j.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.updateMetrics(result, err)
	j.instruments.record(ctx, result, err)

	span.SetAttributes(
		attribute.Int("watch.fetched", result.Fetched),
		attribute.Int("watch.watched", result.Watched),
		attribute.Int("watch.changes", len(result.Changes)),
	)
	if result.NotifyError != nil {
		span.AddEvent("notify failed", trace.WithAttributes(attribute.String("error", result.NotifyError.Error())))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "watch failed")
		j.logger.Error().Err(err).Dur("duration", result.Duration).Msg("status watch failed")
		return result, err
	}

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("fetched", result.Fetched).
		Int("watched", result.Watched).
		Int("changes", len(result.Changes)).
		Msg("status watch completed")

	return result, nil
}

func (j *WatchJob) run(ctx context.Context, result *WatchResult) error {
	if j.source == nil {
		return ErrNoStatusSource
	}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	statuses, err := j.source.FetchAllStatuses(ctx)
	if err != nil {
		return fmt.Errorf("fetching statuses: %w", err)
	}
	result.Fetched = len(statuses)

	previous, err := j.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading stored statuses: %w", err)
	}
	known := statusstore.Index(previous)

	observedAt := result.StartTime
	records := make([]*statusstore.Record, 0, len(statuses))
	for _, s := range statuses {
		if !j.watched(s.RailwayID) {
			continue
		}
		records = append(records, statusstore.NewRecord(*s, observedAt))

		if c, ok := detectChange(known[s.RailwayID], *s, observedAt); ok {
			result.Changes = append(result.Changes, c)
		}
	}
	result.Watched = len(records)

	if err := j.store.Save(ctx, records); err != nil {
		return fmt.Errorf("saving statuses: %w", err)
	}

	if len(result.Changes) > 0 && j.notifier != nil {
		if err := j.notifier.Notify(ctx, result.Changes); err != nil {
			result.NotifyError = err
			j.logger.Warn().Err(err).Int("changes", len(result.Changes)).Msg("notification failed")
		}
	}
	return nil
}

func (j *WatchJob) watched(railwayID string) bool {
	if j.watch == nil {
		return true
	}
	_, ok := j.watch[railwayID]
	return ok
}

// detectChange compares a fetched status with its stored record. A railway
// seen for the first time is a change only when it is not running normally.
func detectChange(prev *statusstore.Record, cur transit.RailwayStatus, at time.Time) (notify.Change, bool) {
	if prev == nil {
		if cur.Status.IsNormal() {
			return notify.Change{}, false
		}
		return notify.Change{Current: cur, DetectedAt: at}, true
	}
	if prev.Status == cur.Status {
		return notify.Change{}, false
	}
	before := prev.RailwayStatus()
	return notify.Change{Previous: &before, Current: cur, DetectedAt: at}, true
}

// Loop runs the job immediately and then every Interval until ctx is done.
func (j *WatchJob) Loop(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.config.Interval).Msg("status watch loop started")

	for {
		_, _ = j.Run(ctx) //nolint:errcheck // logged by Run

		select {
		case <-ctx.Done():
			j.logger.Info().Msg("status watch loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (j *WatchJob) updateMetrics(result *WatchResult, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if err != nil {
		j.metrics.FailedRuns++
	}
	j.metrics.ChangesDetected += int64(len(result.Changes))
	if result.NotifyError != nil {
		j.metrics.NotificationsFailed++
	}
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WatchJob) GetMetrics() WatchMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WatchMetrics{
		TotalRuns:           j.metrics.TotalRuns,
		FailedRuns:          j.metrics.FailedRuns,
		ChangesDetected:     j.metrics.ChangesDetected,
		NotificationsFailed: j.metrics.NotificationsFailed,
		LastRunAt:           j.metrics.LastRunAt,
		LastRunDuration:     j.metrics.LastRunDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *WatchJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":           m.TotalRuns,
		"failed_runs":          m.FailedRuns,
		"changes_detected":     m.ChangesDetected,
		"notifications_failed": m.NotificationsFailed,
		"last_run_at":          m.LastRunAt,
		"last_run_duration":    m.LastRunDuration.String(),
		"total_duration":       m.TotalDuration.String(),
	}
}
