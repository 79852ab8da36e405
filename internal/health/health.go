// Package health aggregates the liveness signals of the status store, the
// queue worker pools, and the circuit breaker registry into a single
// readiness verdict for the "/health" endpoint.
package health

import (
	"context"
	"time"

	"github.com/claimcore/core/internal/breaker"
	"github.com/claimcore/core/internal/lifecycle"
)

// Status is the overall verdict returned by Check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// heartbeatWindow is how recently a worker pool must have processed a
// task (or started up) to be considered alive.
const heartbeatWindow = 30 * time.Second

// Pool is the subset of queue.Pool's surface this package depends on.
type Pool interface {
	Healthy(d time.Duration) bool
}

// NamedPool pairs a worker pool with the label it's reported under.
type NamedPool struct {
	Name string
	Pool Pool
}

// Report is the structured result of a health Check.
type Report struct {
	Status       Status          `json:"status"`
	StorePing    string          `json:"store_ping"`
	Pools        map[string]bool `json:"pools"`
	OpenBreakers []string        `json:"open_breakers,omitempty"`
}

// Checker aggregates the health of the dependencies that back ingress
// and worker operations.
type Checker struct {
	manager  *lifecycle.Manager
	pools    []NamedPool
	breakers *breaker.Registry
}

// New builds a health Checker.
func New(manager *lifecycle.Manager, pools []NamedPool, breakers *breaker.Registry) *Checker {
	return &Checker{manager: manager, pools: pools, breakers: breakers}
}

// Check runs all liveness signals and folds them into a single Report.
//
// The store ping failing is unhealthy (nothing works without it). A
// worker pool gone quiet, or any breaker tripped open, degrades the
// service without taking it fully down: ingress can still accept and
// queue work for when the dependency recovers.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status: StatusHealthy,
		Pools:  make(map[string]bool, len(c.pools)),
	}

	if err := c.manager.Ping(ctx); err != nil {
		report.StorePing = err.Error()
		report.Status = StatusUnhealthy
		return report
	}
	report.StorePing = "ok"

	degraded := false
	for _, p := range c.pools {
		alive := p.Pool.Healthy(heartbeatWindow)
		report.Pools[p.Name] = alive
		if !alive {
			degraded = true
		}
	}

	if c.breakers != nil {
		open := c.breakers.OpenHosts()
		if len(open) > 0 {
			report.OpenBreakers = open
			degraded = true
		}
	}

	if degraded {
		report.Status = StatusDegraded
	}
	return report
}
