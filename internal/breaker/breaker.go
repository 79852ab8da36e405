// Package breaker implements a per-destination-host circuit breaker
// registry: a three-state failure detector (closed, open, half-open)
// that stops sending to a destination after repeated failures and
// probes recovery after a cool-down.
//
// State is intentionally process-local; sharing breaker state across
// processes is left as an open design tradeoff, and this core adopts
// the single-process default.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/claimcore/core/internal/webhook"
)

// ErrOpen is returned by Call when the breaker for a host is open or
// a half-open probe slot is already taken.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes a single breaker instance.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig holds the default failure threshold and reset timeout.
var DefaultConfig = Config{FailureThreshold: 5, ResetTimeout: 60 * time.Second}

type breakerEntry struct {
	mu                  sync.Mutex
	state               webhook.BreakerState
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

// Registry holds one breaker per destination host.
type Registry struct {
	cfg  Config
	mu   sync.Mutex
	byHost map[string]*breakerEntry
	now  func() time.Time
}

// New creates a Registry with the given config.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		byHost: make(map[string]*breakerEntry),
		now:    time.Now,
	}
}

func (r *Registry) entry(host string) *breakerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byHost[host]
	if !ok {
		e = &breakerEntry{state: webhook.BreakerClosed}
		r.byHost[host] = e
	}
	return e
}

// Call executes fn if the breaker for host allows it, recording the
// outcome. It returns ErrOpen without invoking fn if the circuit is
// open (or a half-open probe is already outstanding).
func (r *Registry) Call(host string, fn func() error) error {
	e := r.entry(host)

	e.mu.Lock()
	switch e.state {
	case webhook.BreakerOpen:
		if r.now().Sub(e.openedAt) >= r.cfg.ResetTimeout {
			e.state = webhook.BreakerHalfOpen
			e.probeInFlight = true
		} else {
			e.mu.Unlock()
			return ErrOpen
		}
	case webhook.BreakerHalfOpen:
		if e.probeInFlight {
			e.mu.Unlock()
			return ErrOpen
		}
		e.probeInFlight = true
	}
	e.mu.Unlock()

	err := fn()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.probeInFlight = false
	if err != nil {
		e.consecutiveFailures++
		if e.state == webhook.BreakerHalfOpen || e.consecutiveFailures >= r.cfg.FailureThreshold {
			e.state = webhook.BreakerOpen
			e.openedAt = r.now()
			e.consecutiveFailures = r.cfg.FailureThreshold
		}
		return err
	}

	e.state = webhook.BreakerClosed
	e.consecutiveFailures = 0
	e.openedAt = time.Time{}
	return nil
}

// Snapshot returns the current breaker state for every host the
// registry has seen, for use by the health surface.
func (r *Registry) Snapshot() []webhook.CircuitBreakerState {
	r.mu.Lock()
	hosts := make([]string, 0, len(r.byHost))
	entries := make([]*breakerEntry, 0, len(r.byHost))
	for h, e := range r.byHost {
		hosts = append(hosts, h)
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]webhook.CircuitBreakerState, 0, len(hosts))
	for i, h := range hosts {
		e := entries[i]
		e.mu.Lock()
		out = append(out, webhook.CircuitBreakerState{
			Host:                h,
			State:               e.state,
			ConsecutiveFailures: e.consecutiveFailures,
			OpenedAt:            e.openedAt,
			FailureThreshold:    r.cfg.FailureThreshold,
			ResetTimeout:        r.cfg.ResetTimeout,
		})
		e.mu.Unlock()
	}
	return out
}

// OpenHosts returns the hosts currently in the open state.
func (r *Registry) OpenHosts() []string {
	var open []string
	for _, s := range r.Snapshot() {
		if s.State == webhook.BreakerOpen {
			open = append(open, s.Host)
		}
	}
	return open
}
