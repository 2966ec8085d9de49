// Package resilience wraps upstream HTTP calls with timeouts, retries with
// exponential backoff, and a per-provider circuit breaker.
package resilience

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig tunes the breaker in front of one provider.
type CircuitBreakerConfig struct {
	// Name labels the breaker. Empty means the provider name.
	Name string

	// MaxRequests is how many trial calls pass while half-open. Default: 1
	MaxRequests uint32

	// Interval clears the counts while closed. Default: 0 (never)
	Interval time.Duration

	// Timeout is how long the breaker stays open. Default: 60s
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange runs after the registry has recorded a transition.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker settings used for upstream providers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the breaker once at least 5 requests were made and
// half or more of them failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// providerBreaker guards the calls of one provider and keeps the registry's
// view of its circuit current.
type providerBreaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

func newProviderBreaker(provider string, cfg CircuitBreakerConfig, registry *Registry) *providerBreaker {
	name := cfg.Name
	if name == "" {
		name = provider
	}
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	hook := cfg.OnStateChange
	onStateChange := func(name string, from, to gobreaker.State) {
		if registry != nil {
			registry.recordStateChange(provider)
		}
		if hook != nil {
			hook(name, from, to)
		}
	}

	return &providerBreaker{
		cb: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{ //nolint:bodyclose // type param, not response
			Name:          name,
			MaxRequests:   cfg.MaxRequests,
			Interval:      cfg.Interval,
			Timeout:       timeout,
			ReadyToTrip:   readyToTrip,
			OnStateChange: onStateChange,
		}),
	}
}

// execute runs fn through the breaker. A rejected call returns ErrCircuitOpen.
func (b *providerBreaker) execute(fn func() (*http.Response, error)) (*http.Response, error) {
	resp, err := b.cb.Execute(fn) //nolint:bodyclose // caller closes
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return resp, err
}

func (b *providerBreaker) state() gobreaker.State { return b.cb.State() }

func (b *providerBreaker) counts() gobreaker.Counts { return b.cb.Counts() }
