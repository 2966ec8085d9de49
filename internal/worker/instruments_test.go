package worker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/commutedeck/commutedeck/internal/transit"
)

func TestWatchJob_RecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = mp.Shutdown(context.Background())
	})

	source := newMockSource(chuo, transit.StatusSuspend)
	job := newJob(source, nil, nil)

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	source.err = transit.ErrProviderUnavailable
	_, err = job.Run(context.Background())
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = sum
			}
		}
	}

	runs := map[string]int64{}
	for _, dp := range sums["commutedeck.watch.runs"].DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		runs[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"ok": 1, "failed": 1}, runs)

	changes := sums["commutedeck.watch.changes"].DataPoints
	require.Len(t, changes, 1)
	status, _ := changes[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, "suspend", status.AsString())
	assert.Equal(t, int64(1), changes[0].Value)
}
