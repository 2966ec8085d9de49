package nearby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// Session errors.
var (
	// ErrSuperseded is returned by a refresh whose results were discarded
	// because a newer refresh started after it.
	ErrSuperseded = errors.New("refresh superseded by a newer one")

	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("session closed")
)

// StationErrorMessage is shown when station discovery fails.
const StationErrorMessage = "Could not load nearby stations. Please try again."

// SessionConfig holds configuration for a Session.
type SessionConfig struct {
	// Aggregator runs the pipeline steps (required).
	Aggregator *Aggregator

	// Locator provides the device position (required).
	Locator geo.Locator

	// Logger for session events.
	Logger zerolog.Logger

	// PollInterval is how often statuses are refreshed while stations are
	// shown (default: 3 minutes).
	PollInterval time.Duration

	// LocateTimeout bounds one locate call (default: 10 seconds).
	LocateTimeout time.Duration

	// SideTableSize caps the station to railway table (default: 64).
	SideTableSize int

	// OnUpdate, if set, receives a snapshot after every state change. It may
	// be called from the poller goroutine.
	OnUpdate func(Snapshot)
}

// Session is the stateful pipeline behind one dashboard: it locates the user,
// discovers and resolves stations, attaches statuses and keeps polling them.
//
// Every location refresh takes a new generation; results from an older
// generation are dropped. Status refreshes carry their own sequence number so
// a slow poll cannot overwrite a newer one.
type Session struct {
	agg           *Aggregator
	locator       geo.Locator
	logger        zerolog.Logger
	pollInterval  time.Duration
	locateTimeout time.Duration
	onUpdate      func(Snapshot)

	// sideTable maps station id to railway ids; bounded LRU.
	sideTable gcache.Cache

	mu         sync.Mutex
	state      Snapshot
	stations   []station.NearbyStation
	generation uint64
	statusSeq  uint64
	closed     bool

	ctx        context.Context
	cancel     context.CancelFunc
	pollCancel context.CancelFunc
	pollWG     sync.WaitGroup
}

// NewSession creates an idle session. Call RefreshLocation to start it and
// Close to release the poller.
func NewSession(cfg SessionConfig) *Session {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Minute
	}

	locateTimeout := cfg.LocateTimeout
	if locateTimeout <= 0 {
		locateTimeout = 10 * time.Second
	}

	size := cfg.SideTableSize
	if size <= 0 {
		size = 64
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		agg:           cfg.Aggregator,
		locator:       cfg.Locator,
		logger:        cfg.Logger,
		pollInterval:  pollInterval,
		locateTimeout: locateTimeout,
		onUpdate:      cfg.OnUpdate,
		sideTable:     gcache.New(size).LRU().Build(),
		state:         Snapshot{Phase: PhaseIdle},
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// RefreshLocation runs the full pipeline: locate, discover, resolve, attach.
// A locate or discovery failure is recorded in the snapshot and returned.
// Returns ErrSuperseded if a newer RefreshLocation started meanwhile.
func (s *Session) RefreshLocation(ctx context.Context) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}

	// Locate
	locCtx, cancel := context.WithTimeout(ctx, s.locateTimeout)
	center, err := s.locator.Locate(locCtx)
	timedOut := errors.Is(locCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		if timedOut {
			err = geo.ErrLocateTimeout
		}
		s.logger.Warn().Err(err).Msg("locate failed")
		if !s.commit(gen, func(st *Snapshot) {
			st.Phase = PhaseFailed
			st.LocationError = geo.UserMessage(err)
			st.Location = nil
			st.Stations = nil
			s.stations = nil
		}) {
			return ErrSuperseded
		}
		return err
	}

	if !s.commit(gen, func(st *Snapshot) {
		st.Phase = PhaseDiscovering
		st.Location = &center
	}) {
		return ErrSuperseded
	}

	// Discover
	stations, err := s.agg.Discover(ctx, center)
	if err != nil {
		s.logger.Warn().Err(err).Msg("station discovery failed")
		if !s.commit(gen, func(st *Snapshot) {
			st.Phase = PhaseFailed
			st.StationError = StationErrorMessage
			st.Stations = nil
			s.stations = nil
		}) {
			return ErrSuperseded
		}
		return err
	}

	if len(stations) == 0 {
		if !s.commit(gen, func(st *Snapshot) {
			st.Phase = PhaseReady
			st.Stations = []StationWithStatus{}
			s.stations = nil
		}) {
			return ErrSuperseded
		}
		return nil
	}

	pending := make([]StationWithStatus, len(stations))
	for i, ns := range stations {
		pending[i] = StationWithStatus{Station: ns, RailwayStatuses: []transit.RailwayStatus{}}
	}
	if !s.commit(gen, func(st *Snapshot) {
		st.Phase = PhaseResolving
		st.Stations = pending
		s.stations = stations
	}) {
		return ErrSuperseded
	}

	// Resolve
	for id, railways := range s.agg.Resolve(ctx, stations) {
		_ = s.sideTable.Set(id, railways) //nolint:errcheck // only fails with a loader
	}

	if !s.commit(gen, func(st *Snapshot) { st.Phase = PhaseAttaching }) {
		return ErrSuperseded
	}

	// Attach, then poll. A concurrent RefreshStatus for the same generation
	// may win the attach; the poller still belongs to this generation.
	_ = s.attach(ctx, gen)

	s.mu.Lock()
	current := gen == s.generation && !s.closed
	if current {
		s.startPollerLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if !current {
		return ErrSuperseded
	}
	s.notify(snap)
	return nil
}

// RefreshStatus re-fetches statuses for the current stations. It is a no-op
// when no stations are shown.
func (s *Session) RefreshStatus(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	gen := s.generation
	empty := len(s.stations) == 0
	s.mu.Unlock()

	if empty {
		return nil
	}
	return s.attach(ctx, gen)
}

// attach runs the attach step for the stations of generation gen.
func (s *Session) attach(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.statusSeq++
	seq := s.statusSeq
	stations := append([]station.NearbyStation(nil), s.stations...)
	s.mu.Unlock()

	table := make(map[string][]string, len(stations))
	for _, ns := range stations {
		if v, err := s.sideTable.Get(ns.ID); err == nil {
			if ids, ok := v.([]string); ok {
				table[ns.ID] = ids
			}
		}
	}

	withStatus, fetchedAt := s.agg.Attach(ctx, stations, table)

	s.mu.Lock()
	if gen != s.generation || seq != s.statusSeq || s.closed {
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Uint64("seq", seq).Msg("discarding stale status result")
		return ErrSuperseded
	}
	s.state.Phase = PhaseReady
	s.state.Stations = withStatus
	if !fetchedAt.IsZero() {
		s.state.LastUpdated = fetchedAt
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Close stops the poller and waits for it to exit. The session cannot be
// refreshed afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPollerLocked()
	s.cancel()
	s.mu.Unlock()

	s.pollWG.Wait()
	s.sideTable.Purge()
}

// begin starts a new generation and resets the location-dependent state.
func (s *Session) begin() (uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	s.generation++
	gen := s.generation
	s.stopPollerLocked()
	s.state.Phase = PhaseLocating
	s.state.LocationError = ""
	s.state.StationError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return gen, nil
}

// commit applies fn if gen is still current and reports whether it did.
func (s *Session) commit(gen uint64, fn func(st *Snapshot)) bool {
	s.mu.Lock()
	if gen != s.generation || s.closed {
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("discarding stale refresh result")
		return false
	}
	fn(&s.state)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true
}

func (s *Session) snapshotLocked() Snapshot {
	snap := s.state.clone()
	snap.Generation = s.generation
	snap.Polling = s.pollCancel != nil
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
}

// startPollerLocked replaces any running poller with one for the current
// station list. Callers hold s.mu.
func (s *Session) startPollerLocked() {
	s.stopPollerLocked()
	if len(s.stations) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.pollCancel = cancel
	interval := s.pollInterval

	s.pollWG.Add(1)
	go func() {
		defer s.pollWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RefreshStatus(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
					s.logger.Debug().Err(err).Msg("status poll failed")
				}
			}
		}
	}()

	s.logger.Debug().Dur("interval", interval).Int("stations", len(s.stations)).Msg("status poller started")
}

// stopPollerLocked cancels the running poller without waiting for it.
// Callers hold s.mu.
func (s *Session) stopPollerLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}
