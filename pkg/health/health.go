// Package health runs registered dependency checks in parallel and serves the
// aggregate as liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
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

// severity orders statuses so the report can take the worst one.
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
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker holds named checks. Each check gets at most CheckTimeout.
type Checker struct {
	CheckTimeout time.Duration

	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
	logger  *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		CheckTimeout: 2 * time.Second,
		checks:       make(map[string]Check),
		started:      time.Now(),
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces a named check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

type namedResult struct {
	name   string
	result ComponentHealth
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(chan namedResult, len(checks))
	for name, check := range checks {
		go func() {
			checkCtx, cancel := context.WithTimeout(ctx, c.CheckTimeout)
			defer cancel()
			start := time.Now()
			res := check(checkCtx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results <- namedResult{name: name, result: res}
		}()
	}

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for range len(checks) {
		r := <-results
		report.Components[r.name] = r.result
		if r.result.Status.severity() > report.Status.severity() {
			report.Status = r.result.Status
		}
		if r.result.Status != StatusUp {
			c.logger.Debug("component unhealthy", "name", r.name, "status", r.result.Status, "message", r.result.Message)
		}
	}
	return report
}

// PingCheck turns a client's Ping into a Check. A failed ping marks the
// component down, or degraded when optional so the service keeps serving
// without it.
func PingCheck(ping func(ctx context.Context) error, optional bool) Check {
	failed := StatusDown
	if optional {
		failed = StatusDegraded
	}
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// ReadyCheck reports up once ready returns true.
func ReadyCheck(ready func() bool, message string) Check {
	return func(context.Context) ComponentHealth {
		if !ready() {
			return ComponentHealth{Status: StatusDown, Message: "not ready"}
		}
		return ComponentHealth{Status: StatusUp, Message: message}
	}
}

// LiveHandler answers liveness probes without running any checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes. Degraded still counts as ready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.write(w, status, report)
	}
}

func (c *Checker) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Warn("writing health response", "error", err)
	}
}
