// Package observability provides health checks, metrics, and tracing capabilities
package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Status values reported by the health endpoints.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthChecker defines an interface for components that can report their health status
type HealthChecker interface {
	// HealthCheck returns nil if healthy, error if unhealthy
	HealthCheck(ctx context.Context) error
	Name() string
}

// ReadinessChecker defines an interface for components that can report their readiness status
type ReadinessChecker interface {
	// ReadinessCheck returns nil if ready, error if not ready
	ReadinessCheck(ctx context.Context) error
	Name() string
}

// ComponentStatus is the result of one checker.
type ComponentStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// DetailReporter is implemented by checkers that add fields to the response,
// such as the lifecycle phase.
type DetailReporter interface {
	Details() map[string]any
}

// Response is the body of /healthz and /readyz.
type Response struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]any    `json:"details,omitempty"`
	Components []ComponentStatus `json:"components"`
	// Auxiliary checks are reported but never change Status.
	Auxiliary []ComponentStatus `json:"auxiliary,omitempty"`
}

// HealthManager manages health and readiness checks
type HealthManager struct {
	logger            *zap.SugaredLogger
	healthCheckers    []HealthChecker
	readinessCheckers []ReadinessChecker
	auxiliary         []HealthChecker
	timeout           time.Duration
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger *zap.SugaredLogger) *HealthManager {
	return &HealthManager{
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// AddHealthChecker registers a health checker
func (hm *HealthManager) AddHealthChecker(checker HealthChecker) {
	hm.healthCheckers = append(hm.healthCheckers, checker)
}

// AddReadinessChecker registers a readiness checker
func (hm *HealthManager) AddReadinessChecker(checker ReadinessChecker) {
	hm.readinessCheckers = append(hm.readinessCheckers, checker)
}

// AddAuxiliaryChecker registers a checker whose result is informational,
// e.g. identity provider connectivity.
func (hm *HealthManager) AddAuxiliaryChecker(checker HealthChecker) {
	hm.auxiliary = append(hm.auxiliary, checker)
}

// SetTimeout sets the timeout for health checks
func (hm *HealthManager) SetTimeout(timeout time.Duration) {
	hm.timeout = timeout
}

// HealthzHandler answers 200 while every health checker passes, 503 otherwise.
func (hm *HealthManager) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hm.timeout)
		defer cancel()

		response := hm.CheckHealth(ctx)
		statusCode := http.StatusOK
		if response.Status != StatusHealthy {
			statusCode = http.StatusServiceUnavailable
		}
		hm.writeJSONResponse(w, statusCode, response)
	}
}

// ReadyzHandler answers 200 once every readiness checker passes, 503 otherwise.
func (hm *HealthManager) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hm.timeout)
		defer cancel()

		response := hm.CheckReadiness(ctx)
		statusCode := http.StatusOK
		if response.Status != StatusReady {
			statusCode = http.StatusServiceUnavailable
		}
		hm.writeJSONResponse(w, statusCode, response)
	}
}

// CheckHealth runs all health checkers.
func (hm *HealthManager) CheckHealth(ctx context.Context) Response {
	checks := make([]namedCheck, 0, len(hm.healthCheckers))
	for _, c := range hm.healthCheckers {
		checks = append(checks, namedCheck{c.Name(), c.HealthCheck})
	}
	resp := hm.run(ctx, checks, StatusHealthy, StatusUnhealthy, "Health check failed")

	if len(hm.auxiliary) > 0 {
		aux := make([]namedCheck, 0, len(hm.auxiliary))
		for _, c := range hm.auxiliary {
			aux = append(aux, namedCheck{c.Name(), c.HealthCheck})
		}
		resp.Auxiliary = hm.run(ctx, aux, StatusHealthy, StatusUnhealthy, "Auxiliary check failed").Components
	}
	resp.Details = collectDetails(hm.healthCheckers)
	return resp
}

// CheckReadiness runs all readiness checkers.
func (hm *HealthManager) CheckReadiness(ctx context.Context) Response {
	checks := make([]namedCheck, 0, len(hm.readinessCheckers))
	for _, c := range hm.readinessCheckers {
		checks = append(checks, namedCheck{c.Name(), c.ReadinessCheck})
	}
	resp := hm.run(ctx, checks, StatusReady, StatusNotReady, "Readiness check failed")
	resp.Details = collectDetails(hm.readinessCheckers)
	return resp
}

func collectDetails[T any](checkers []T) map[string]any {
	var details map[string]any
	for _, c := range checkers {
		r, ok := any(c).(DetailReporter)
		if !ok {
			continue
		}
		if details == nil {
			details = make(map[string]any)
		}
		for k, v := range r.Details() {
			details[k] = v
		}
	}
	return details
}

type namedCheck struct {
	name  string
	check func(context.Context) error
}

func (hm *HealthManager) run(ctx context.Context, checks []namedCheck, pass, fail, failMsg string) Response {
	response := Response{
		Status:     pass,
		Timestamp:  time.Now(),
		Components: make([]ComponentStatus, 0, len(checks)),
	}

	for _, c := range checks {
		start := time.Now()
		status := ComponentStatus{Name: c.name, Status: pass}

		if err := c.check(ctx); err != nil {
			status.Status = fail
			status.Error = err.Error()
			response.Status = fail
			hm.logger.Debugw(failMsg,
				"component", c.name,
				"error", err)
		}

		status.Latency = time.Since(start).String()
		response.Components = append(response.Components, status)
	}

	return response
}

func (hm *HealthManager) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hm.logger.Errorw("Failed to encode health response", "error", err)
	}
}

// IsHealthy returns true if all health checks pass
func (hm *HealthManager) IsHealthy(ctx context.Context) bool {
	return hm.CheckHealth(ctx).Status == StatusHealthy
}

// IsReady returns true if all readiness checks pass
func (hm *HealthManager) IsReady(ctx context.Context) bool {
	return hm.CheckReadiness(ctx).Status == StatusReady
}
