// Package health runs registered dependency probes in parallel and serves
// the aggregate on /health/live and /health/ready.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the worst component status plus every component's result.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Pinger is anything with a context-aware liveness probe: the corpus
// store, the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports up when p answers and failStatus otherwise. A nil p
// reports degraded with "not configured".
func PingCheck(p Pinger, failStatus Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if p == nil {
			return ComponentHealth{Status: StatusDegraded, Message: "not configured"}
		}
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: failStatus, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Go(func() {
			start := time.Now()
			result := check(ctx)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = result
			if result.Status.severity() > report.Status.severity() {
				report.Status = result.Status
			}
		})
	}
	wg.Wait()
	return report
}

// LiveHandler answers 200 while the process is serving.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when a component is down; a degraded
// service (cache off, analytics unreachable) still takes traffic.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
