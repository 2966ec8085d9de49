package worker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/commutedeck/commutedeck/internal/telemetry"
)

const instrumentationName = "github.com/commutedeck/commutedeck/internal/worker"

// watchInstruments mirror WatchMetrics into OpenTelemetry.
type watchInstruments struct {
	runs     metric.Int64Counter
	changes  metric.Int64Counter
	duration metric.Float64Histogram
}

func newWatchInstruments() (*watchInstruments, error) {
	meter := telemetry.Meter(instrumentationName)
	in := &watchInstruments{}
	var err error

	if in.runs, err = meter.Int64Counter(
		"commutedeck.watch.runs",
		metric.WithDescription("Status watch runs by outcome"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}
	if in.changes, err = meter.Int64Counter(
		"commutedeck.watch.changes",
		metric.WithDescription("Railway status changes detected, by new status"),
		metric.WithUnit("{change}"),
	); err != nil {
		return nil, err
	}
	if in.duration, err = meter.Float64Histogram(
		"commutedeck.watch.duration",
		metric.WithDescription("Duration of status watch runs"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *watchInstruments) record(ctx context.Context, result *WatchResult, err error) {
	if in == nil {
		return
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case result.NotifyError != nil:
		outcome = "notify_failed"
	}
	in.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	in.duration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))

	for _, c := range result.Changes {
		in.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(c.Current.Status))))
	}
}
