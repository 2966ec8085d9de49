package nearby_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

var (
	user = geo.Coordinates{Lat: 35.9100, Lng: 139.6200}

	omiya     = station.Station{ID: "n1", Name: "大宮", Location: geo.Coordinates{Lat: 35.9066, Lng: 139.6233}}
	kitaOmiya = station.Station{ID: "n2", Name: "北大宮", Location: geo.Coordinates{Lat: 35.9170, Lng: 139.6290}}
	tetsuhaku = station.Station{ID: "n3", Name: "鉄道博物館", Location: geo.Coordinates{Lat: 35.9210, Lng: 139.6160}}
	kitaYono  = station.Station{ID: "n4", Name: "北与野", Location: geo.Coordinates{Lat: 35.8930, Lng: 139.6300}}
)

type stubFinder struct {
	mu       sync.Mutex
	stations []station.Station
	err      error
	calls    atomic.Int32
}

func (f *stubFinder) FindStations(_ context.Context, _ geo.Coordinates, _ int) ([]station.Station, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stations, f.err
}

func (f *stubFinder) set(stations []station.Station) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations = stations
}

type stubResolver struct {
	byName map[string][]railway.Ref
	err    error
	calls  atomic.Int32
	last   atomic.Value // []string
}

func (r *stubResolver) ResolveRailways(_ context.Context, names []string) (map[string][]railway.Ref, error) {
	r.calls.Add(1)
	r.last.Store(append([]string(nil), names...))
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string][]railway.Ref, len(names))
	for _, n := range names {
		out[n] = r.byName[n]
	}
	return out, nil
}

type stubFetcher struct {
	mu       sync.Mutex
	statuses []*transit.RailwayStatus
	err      error
	calls    atomic.Int32
}

func (f *stubFetcher) FetchAllStatuses(_ context.Context) ([]*transit.RailwayStatus, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses, f.err
}

func (f *stubFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func testResolver() *stubResolver {
	return &stubResolver{byName: map[string][]railway.Ref{
		"大宮": {
			{RailwayID: "odpt.Railway:JR-East.KeihinTohokuNegishi"},
			{RailwayID: "odpt.Railway:JR-East.Saikyo"},
		},
		"北大宮":   {{RailwayID: "odpt.Railway:Tobu.TobuUrbanPark"}},
		"鉄道博物館": {{RailwayID: "odpt.Railway:SaitamaNewUrbanTransit.NewShuttle"}},
	}}
}

func testFetcher() *stubFetcher {
	return &stubFetcher{statuses: []*transit.RailwayStatus{
		{RailwayID: "odpt.Railway:JR-East.Saikyo", RailwayName: "埼京線", Status: transit.StatusDelay, StatusText: "遅延"},
		{RailwayID: "odpt.Railway:JR-East.Yamanote", RailwayName: "山手線", Status: transit.StatusNormal, StatusText: transit.NormalStatusText},
		{RailwayID: "odpt.Railway:JR-East.KeihinTohokuNegishi", RailwayName: "京浜東北線", Status: transit.StatusNormal, StatusText: transit.NormalStatusText},
		{RailwayID: "odpt.Railway:Tobu.TobuUrbanPark", RailwayName: "東武アーバンパークライン", Status: transit.StatusSuspend, StatusText: "運転見合わせ"},
	}}
}
