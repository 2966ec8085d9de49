package resilience

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HealthLevel summarizes a provider for the ops endpoints.
type HealthLevel int

const (
	LevelHealthy HealthLevel = iota
	// LevelDegraded means the breaker is probing, or the most recent call
	// failed without tripping it yet.
	LevelDegraded
	LevelUnhealthy
)

// ProviderHealth is a point-in-time view of one upstream provider.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// ConsecutiveFailures counts Do calls that failed since the last success.
	// Unlike Counts it survives breaker state transitions.
	ConsecutiveFailures int

	LastSuccessAt    *time.Time
	LastFailureAt    *time.Time
	CircuitChangedAt *time.Time
	LastError        string
}

// Level folds the breaker state and the call history into one value.
func (h *ProviderHealth) Level() HealthLevel {
	switch {
	case h.CircuitState == gobreaker.StateOpen:
		return LevelUnhealthy
	case h.CircuitState == gobreaker.StateHalfOpen, h.ConsecutiveFailures > 0:
		return LevelDegraded
	default:
		return LevelHealthy
	}
}

// Registry collects the clients of every upstream so /status can report on
// them together. Clients register themselves when ClientConfig.Registry is set.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*providerEntry
	now     func() time.Time
}

type providerEntry struct {
	client        *Client
	failures      int
	lastSuccessAt time.Time
	lastFailureAt time.Time
	changedAt     time.Time
	lastError     string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*providerEntry),
		now:     time.Now,
	}
}

// Register adds client under name. A later registration with the same name
// replaces the earlier one and its history.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &providerEntry{client: client}
}

func (r *Registry) recordSuccess(name string) {
	r.update(name, func(e *providerEntry, now time.Time) {
		e.failures = 0
		e.lastSuccessAt = now
	})
}

func (r *Registry) recordFailure(name string, err error) {
	r.update(name, func(e *providerEntry, now time.Time) {
		e.failures++
		e.lastFailureAt = now
		if err != nil {
			e.lastError = err.Error()
		}
	})
}

func (r *Registry) recordStateChange(name string) {
	r.update(name, func(e *providerEntry, now time.Time) {
		e.changedAt = now
	})
}

func (r *Registry) update(name string, fn func(*providerEntry, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		fn(e, r.now())
	}
}

// Health returns one provider's health, or nil when name is not registered.
func (r *Registry) Health(name string) *ProviderHealth {
	r.mu.RLock()
	e, ok := r.entries[name]
	var entry providerEntry
	if ok {
		entry = *e
	}
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return entry.snapshot(name)
}

// Snapshot returns every provider's health ordered by name.
func (r *Registry) Snapshot() []*ProviderHealth {
	r.mu.RLock()
	copied := make(map[string]providerEntry, len(r.entries))
	for name, e := range r.entries {
		copied[name] = *e
	}
	r.mu.RUnlock()

	out := make([]*ProviderHealth, 0, len(copied))
	for name, e := range copied {
		out = append(out, e.snapshot(name))
	}
	slices.SortFunc(out, func(a, b *ProviderHealth) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// snapshot reads the breaker, so it must run without r.mu held: gobreaker
// calls OnStateChange, which takes r.mu, under its own lock.
func (e providerEntry) snapshot(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:                name,
		CircuitState:        e.client.CircuitBreakerState(),
		Counts:              e.client.CircuitBreakerCounts(),
		ConsecutiveFailures: e.failures,
		LastSuccessAt:       timePtr(e.lastSuccessAt),
		LastFailureAt:       timePtr(e.lastFailureAt),
		CircuitChangedAt:    timePtr(e.changedAt),
		LastError:           e.lastError,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
