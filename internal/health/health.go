// Package health provides component health checks for lyrad and the HTTP
// endpoint that exposes them.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Checker manages registered health checks.
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]Check
	critical  map[string]bool
	startTime time.Time
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]Check),
		critical:  make(map[string]bool),
		startTime: time.Now(),
	}
}

// Register adds a named check. A failing critical check makes the overall
// status unhealthy; a failing non-critical one only degrades it.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.critical[name] = critical
}

// Report is the aggregated result of all checks.
type Report struct {
	Status        Status                 `json:"status"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Components    map[string]CheckResult `json:"components"`
}

// Run executes every registered check and aggregates the outcome.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	critical := make(map[string]bool, len(c.critical))
	for name, fn := range c.checks {
		checks[name] = fn
		critical[name] = c.critical[name]
	}
	start := c.startTime
	c.mu.RUnlock()

	report := Report{
		Status:        StatusHealthy,
		UptimeSeconds: int64(time.Since(start).Seconds()),
		Components:    make(map[string]CheckResult, len(checks)),
	}
	for name, fn := range checks {
		res := fn(ctx)
		report.Components[name] = res
		switch res.Status {
		case StatusUnhealthy:
			if critical[name] {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// Handler serves the aggregated report as JSON. Unhealthy maps to 503 so
// the endpoint works directly as a liveness probe.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

// Healthy is a shortcut for a passing result.
func Healthy(msg string) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// Unhealthy is a shortcut for a failing result.
func Unhealthy(err error) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
}
