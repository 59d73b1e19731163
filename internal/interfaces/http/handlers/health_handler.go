package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks caps in-flight dependency probes per readiness call.
const maxConcurrentChecks = 4

// HealthChecker is a component that can report its health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkerFunc) Name() string                    { return c.name }
func (c checkerFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckerFunc adapts fn to HealthChecker.
func CheckerFunc(name string, fn func(ctx context.Context) error) HealthChecker {
	return checkerFunc{name: name, fn: fn}
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	timeout  time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		timeout:  5 * time.Second,
	}
}

// LivenessResponse is the response for liveness probe.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the response for readiness probe.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck represents the health status of a single component.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness handles GET /healthz.  It never consults dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz: 200 when every dependency is healthy, 503
// otherwise.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checkers) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	components := h.checkAll(ctx)
	resp := ReadinessResponse{Status: "ready", Components: components}
	for _, cc := range components {
		if cc.Status != "healthy" {
			resp.Status = "not_ready"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// checkAll probes every dependency concurrently. A failing probe is
// reported in its ComponentCheck, never as a group error.
func (h *HealthHandler) checkAll(ctx context.Context) map[string]ComponentCheck {
	checks := make([]ComponentCheck, len(h.checkers))
	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for i, hc := range h.checkers {
		i, hc := i, hc
		g.Go(func() error {
			start := time.Now()
			err := hc.Check(ctx)
			checks[i] = ComponentCheck{Status: "healthy", Latency: time.Since(start).Truncate(time.Microsecond).String()}
			if err != nil {
				checks[i].Status, checks[i].Error = "unhealthy", err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]ComponentCheck, len(checks))
	for i, hc := range h.checkers {
		results[hc.Name()] = checks[i]
	}
	return results
}
