package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health of one component or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth is the outcome of one check.
type ComponentHealth struct {
	Status    Status        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Check pings a single dependency.
type Check func(ctx context.Context) ComponentHealth

// RequiredCheck marks the service unhealthy when ping fails.
func RequiredCheck(component string, ping func(context.Context) error) Check {
	return pingCheck(component, StatusUnhealthy, ping)
}

// OptionalCheck only degrades the service when ping fails. Used for the cache
// and broker: reads fall back to the database and stale entries expire by TTL.
func OptionalCheck(component string, ping func(context.Context) error) Check {
	return pingCheck(component, StatusDegraded, ping)
}

func pingCheck(component string, onFailure Status, ping func(context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: onFailure, Detail: fmt.Sprintf("%s unreachable: %v", component, err)}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// Report aggregates every component. Status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health holds the checks for readiness endpoints.
type Health struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewHealth() *Health {
	return &Health{checks: map[string]Check{}}
}

// Register sets the check for a component, replacing any earlier one.
func (h *Health) Register(component string, c Check) {
	h.mu.Lock()
	h.checks[component] = c
	h.mu.Unlock()
}

// Components runs all checks in parallel.
func (h *Health) Components(ctx context.Context) map[string]ComponentHealth {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	var (
		mu  sync.Mutex
		out = make(map[string]ComponentHealth, len(checks))
		g   errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			start := time.Now()
			res := check(ctx)
			res.Latency = time.Since(start)
			res.CheckedAt = time.Now().UTC()
			mu.Lock()
			out[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Evaluate runs all checks and folds them into a Report.
func (h *Health) Evaluate(ctx context.Context) Report {
	components := h.Components(ctx)
	status := StatusHealthy
	for _, c := range components {
		if c.Status == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
		if c.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return Report{Status: status, CheckedAt: time.Now().UTC(), Components: components}
}
