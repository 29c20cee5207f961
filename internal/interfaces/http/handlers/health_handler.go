package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker reports whether one dependency is usable.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// HealthCheck adapts fn into a named HealthChecker.
func HealthCheck(name string, fn func(ctx context.Context) error) HealthChecker {
	return checkFunc{name: name, fn: fn}
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	timeout  time.Duration
}

func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		timeout:  5 * time.Second,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse lists every dependency probe by name.
type ReadinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

type DependencyStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness probes every dependency concurrently and answers 503 when any
// probe fails or runs past the timeout.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deps := h.probe(ctx)
	resp := ReadinessResponse{Status: "ready"}
	code := http.StatusOK
	if len(deps) > 0 {
		resp.Dependencies = make(map[string]DependencyStatus, len(deps))
	}
	for i, d := range deps {
		resp.Dependencies[h.checkers[i].Name()] = d
		if d.Status != "healthy" {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

// probe returns one status per checker, in checker order.
func (h *HealthHandler) probe(ctx context.Context) []DependencyStatus {
	out := make([]DependencyStatus, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			err := c.Check(ctx)
			out[i] = DependencyStatus{Status: "healthy", Latency: time.Since(start).Truncate(time.Microsecond).String()}
			if err != nil {
				out[i].Status = "unhealthy"
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
