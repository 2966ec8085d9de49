package nearby_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/nearby"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

func newTestSession(t *testing.T, locator geo.Locator, f *stubFinder, r *stubResolver, s *stubFetcher, poll time.Duration) *nearby.Session {
	t.Helper()
	session := nearby.NewSession(nearby.SessionConfig{
		Aggregator:    newTestAggregator(f, r, s),
		Locator:       locator,
		Logger:        zerolog.Nop(),
		PollInterval:  poll,
		LocateTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(session.Close)
	return session
}

func TestSession_RefreshLocation(t *testing.T) {
	var updates atomic.Int32
	session := nearby.NewSession(nearby.SessionConfig{
		Aggregator: newTestAggregator(
			&stubFinder{stations: []station.Station{omiya, kitaOmiya, tetsuhaku, kitaYono}},
			testResolver(), testFetcher()),
		Locator:  geo.StaticLocator{Position: user},
		Logger:   zerolog.Nop(),
		OnUpdate: func(nearby.Snapshot) { updates.Add(1) },
	})
	defer session.Close()

	assert.Equal(t, nearby.PhaseIdle, session.Snapshot().Phase)

	require.NoError(t, session.RefreshLocation(context.Background()))

	snap := session.Snapshot()
	assert.Equal(t, nearby.PhaseReady, snap.Phase)
	require.NotNil(t, snap.Location)
	assert.Equal(t, user, *snap.Location)
	require.Len(t, snap.Stations, 3)
	assert.Equal(t, "大宮", snap.Stations[0].Station.Name)
	assert.Len(t, snap.Stations[0].RailwayStatuses, 2)
	assert.Equal(t, transit.StatusSuspend, snap.Stations[1].RailwayStatuses[0].Status)
	assert.False(t, snap.LastUpdated.IsZero())
	assert.True(t, snap.Polling)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Greater(t, updates.Load(), int32(3))
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	session := newTestSession(t, geo.StaticLocator{Position: user},
		&stubFinder{stations: []station.Station{omiya}}, testResolver(), testFetcher(), time.Minute)
	require.NoError(t, session.RefreshLocation(context.Background()))

	snap := session.Snapshot()
	snap.Stations[0].RailwayStatuses[0].Status = transit.StatusNormal
	snap.Location.Lat = 0

	again := session.Snapshot()
	assert.Equal(t, transit.StatusDelay, again.Stations[0].RailwayStatuses[0].Status)
	assert.Equal(t, user.Lat, again.Location.Lat)
}

func TestSession_ZeroStationsNoPolling(t *testing.T) {
	fetcher := testFetcher()
	session := newTestSession(t, geo.StaticLocator{Position: user}, &stubFinder{}, testResolver(), fetcher, 10*time.Millisecond)

	require.NoError(t, session.RefreshLocation(context.Background()))

	snap := session.Snapshot()
	assert.Equal(t, nearby.PhaseReady, snap.Phase)
	assert.NotNil(t, snap.Stations)
	assert.Empty(t, snap.Stations)
	assert.False(t, snap.Polling)

	require.NoError(t, session.RefreshStatus(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestSession_PollsStatusOnly(t *testing.T) {
	finder := &stubFinder{stations: []station.Station{omiya}}
	resolver := testResolver()
	fetcher := testFetcher()
	var locates atomic.Int32
	locator := geo.LocatorFunc(func(context.Context) (geo.Coordinates, error) {
		locates.Add(1)
		return user, nil
	})
	session := newTestSession(t, locator, finder, resolver, fetcher, 10*time.Millisecond)

	require.NoError(t, session.RefreshLocation(context.Background()))

	assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), locates.Load())
	assert.Equal(t, int32(1), finder.calls.Load())
	assert.Equal(t, int32(1), resolver.calls.Load())
}

func TestSession_CloseStopsPoller(t *testing.T) {
	fetcher := testFetcher()
	session := newTestSession(t, geo.StaticLocator{Position: user},
		&stubFinder{stations: []station.Station{omiya}}, testResolver(), fetcher, 10*time.Millisecond)

	require.NoError(t, session.RefreshLocation(context.Background()))
	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	session.Close()
	after := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, after, fetcher.calls.Load())
	assert.False(t, session.Snapshot().Polling)
	assert.ErrorIs(t, session.RefreshLocation(context.Background()), nearby.ErrSessionClosed)
	assert.ErrorIs(t, session.RefreshStatus(context.Background()), nearby.ErrSessionClosed)
}

func TestSession_PollerStopsWhenStationsBecomeEmpty(t *testing.T) {
	finder := &stubFinder{stations: []station.Station{omiya}}
	fetcher := testFetcher()
	session := newTestSession(t, geo.StaticLocator{Position: user}, finder, testResolver(), fetcher, 10*time.Millisecond)

	require.NoError(t, session.RefreshLocation(context.Background()))
	assert.True(t, session.Snapshot().Polling)

	finder.set(nil)
	require.NoError(t, session.RefreshLocation(context.Background()))
	assert.False(t, session.Snapshot().Polling)

	after := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fetcher.calls.Load())
}

func TestSession_StatusFailureRendersStations(t *testing.T) {
	fetcher := testFetcher()
	fetcher.setErr(errors.New("odpt down"))
	session := newTestSession(t, geo.StaticLocator{Position: user},
		&stubFinder{stations: []station.Station{omiya, kitaOmiya}}, testResolver(), fetcher, time.Minute)

	require.NoError(t, session.RefreshLocation(context.Background()))

	snap := session.Snapshot()
	assert.Equal(t, nearby.PhaseReady, snap.Phase)
	require.Len(t, snap.Stations, 2)
	for _, s := range snap.Stations {
		assert.Empty(t, s.RailwayStatuses)
	}
	assert.Empty(t, snap.StationError)
	assert.True(t, snap.LastUpdated.IsZero())
}

func TestSession_RefreshStatusUsesSideTable(t *testing.T) {
	resolver := testResolver()
	fetcher := testFetcher()
	session := newTestSession(t, geo.StaticLocator{Position: user},
		&stubFinder{stations: []station.Station{omiya}}, resolver, fetcher, time.Hour)

	require.NoError(t, session.RefreshLocation(context.Background()))
	require.NoError(t, session.RefreshStatus(context.Background()))

	assert.Equal(t, int32(1), resolver.calls.Load())
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Len(t, session.Snapshot().Stations[0].RailwayStatuses, 2)
}

func TestSession_SideTableEvictsPreviousStations(t *testing.T) {
	var calls atomic.Int32
	locator := geo.LocatorFunc(func(context.Context) (geo.Coordinates, error) {
		if calls.Add(1) == 1 {
			return user, nil
		}
		return kitaOmiya.Location, nil
	})

	resolver := testResolver()
	fetcher := testFetcher()
	session := nearby.NewSession(nearby.SessionConfig{
		Aggregator: nearby.NewAggregator(nearby.Config{
			Stations: &centerFinder{byLat: map[float64][]station.Station{
				user.Lat:               {omiya},
				kitaOmiya.Location.Lat: {kitaOmiya},
			}},
			Railways: resolver,
			Statuses: fetcher,
			Logger:   zerolog.Nop(),
		}),
		Locator:       locator,
		Logger:        zerolog.Nop(),
		PollInterval:  time.Hour,
		SideTableSize: 1,
	})
	defer session.Close()

	require.NoError(t, session.RefreshLocation(context.Background()))
	ids, ok := nearby.SideTableRailways(session, omiya.ID)
	require.True(t, ok)
	assert.Len(t, ids, 2)

	require.NoError(t, session.RefreshLocation(context.Background()))

	_, ok = nearby.SideTableRailways(session, omiya.ID)
	assert.False(t, ok, "previous station should be evicted")
	ids, ok = nearby.SideTableRailways(session, kitaOmiya.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"odpt.Railway:Tobu.TobuUrbanPark"}, ids)

	require.NoError(t, session.RefreshStatus(context.Background()))

	assert.Equal(t, int32(2), resolver.calls.Load())
	assert.Equal(t, int32(3), fetcher.calls.Load())
	snap := session.Snapshot()
	require.Len(t, snap.Stations, 1)
	assert.Equal(t, "北大宮", snap.Stations[0].Station.Name)
	require.Len(t, snap.Stations[0].RailwayStatuses, 1)
	assert.Equal(t, transit.StatusSuspend, snap.Stations[0].RailwayStatuses[0].Status)
}

func TestSession_LocateErrors(t *testing.T) {
	tests := []struct {
		name    string
		locator geo.Locator
		wantErr error
	}{
		{
			name: "permission denied",
			locator: geo.LocatorFunc(func(context.Context) (geo.Coordinates, error) {
				return geo.Coordinates{}, geo.ErrPermissionDenied
			}),
			wantErr: geo.ErrPermissionDenied,
		},
		{
			name:    "unavailable",
			locator: geo.StaticLocator{Position: geo.Coordinates{Lat: 200}},
			wantErr: geo.ErrPositionUnavailable,
		},
		{
			name: "timeout",
			locator: geo.LocatorFunc(func(ctx context.Context) (geo.Coordinates, error) {
				<-ctx.Done()
				return geo.Coordinates{}, ctx.Err()
			}),
			wantErr: geo.ErrLocateTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &stubFinder{stations: []station.Station{omiya}}
			session := newTestSession(t, tt.locator, finder, testResolver(), testFetcher(), time.Minute)

			err := session.RefreshLocation(context.Background())
			require.ErrorIs(t, err, tt.wantErr)

			snap := session.Snapshot()
			assert.Equal(t, nearby.PhaseFailed, snap.Phase)
			assert.Equal(t, geo.UserMessage(tt.wantErr), snap.LocationError)
			assert.Nil(t, snap.Location)
			assert.False(t, snap.Polling)
			assert.Equal(t, int32(0), finder.calls.Load())
		})
	}
}

func TestSession_DiscoveryErrorKeepsLocation(t *testing.T) {
	finder := &stubFinder{err: station.ErrProviderUnavailable}
	fetcher := testFetcher()
	session := newTestSession(t, geo.StaticLocator{Position: user}, finder, testResolver(), fetcher, time.Minute)

	err := session.RefreshLocation(context.Background())
	require.ErrorIs(t, err, station.ErrProviderUnavailable)

	snap := session.Snapshot()
	assert.Equal(t, nearby.PhaseFailed, snap.Phase)
	assert.Equal(t, nearby.StationErrorMessage, snap.StationError)
	require.NotNil(t, snap.Location)
	assert.Equal(t, user, *snap.Location)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestSession_StaleGenerationDiscarded(t *testing.T) {
	far := geo.Coordinates{Lat: 35.6812, Lng: 139.7671}
	tokyo := station.Station{ID: "t1", Name: "東京", Location: far}

	release := make(chan struct{})
	var calls atomic.Int32
	locator := geo.LocatorFunc(func(ctx context.Context) (geo.Coordinates, error) {
		if calls.Add(1) == 1 {
			select {
			case <-release:
			case <-ctx.Done():
				return geo.Coordinates{}, ctx.Err()
			}
			return user, nil
		}
		return far, nil
	})

	finderByCenter := &centerFinder{byLat: map[float64][]station.Station{
		user.Lat: {omiya},
		far.Lat:  {tokyo},
	}}

	session := nearby.NewSession(nearby.SessionConfig{
		Aggregator: nearby.NewAggregator(nearby.Config{
			Stations: finderByCenter,
			Railways: testResolver(),
			Statuses: testFetcher(),
			Logger:   zerolog.Nop(),
		}),
		Locator:       locator,
		Logger:        zerolog.Nop(),
		LocateTimeout: 5 * time.Second,
	})
	defer session.Close()

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = session.RefreshLocation(context.Background())
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, session.RefreshLocation(context.Background()))

	close(release)
	wg.Wait()

	assert.ErrorIs(t, firstErr, nearby.ErrSuperseded)

	snap := session.Snapshot()
	assert.Equal(t, uint64(2), snap.Generation)
	require.Len(t, snap.Stations, 1)
	assert.Equal(t, "東京", snap.Stations[0].Station.Name)
	assert.Equal(t, far, *snap.Location)
}

// centerFinder returns a different station list per center latitude.
type centerFinder struct {
	byLat map[float64][]station.Station
}

func (f *centerFinder) FindStations(_ context.Context, center geo.Coordinates, _ int) ([]station.Station, error) {
	return f.byLat[center.Lat], nil
}
