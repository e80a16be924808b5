package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Config holds configuration for observability features
type Config struct {
	HealthTimeout time.Duration `json:"health_timeout"`
	Metrics       bool          `json:"metrics"`
	Tracing       TracingConfig `json:"tracing"`
}

// DefaultConfig returns a default observability configuration
func DefaultConfig(serviceName, serviceVersion string) Config {
	return Config{
		HealthTimeout: 5 * time.Second,
		Metrics:       true,
		Tracing: TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
		},
	}
}

// Manager coordinates all observability features
type Manager struct {
	logger  *zap.SugaredLogger
	health  *HealthManager
	metrics *MetricsManager
	tracing *TracingManager

	startTime time.Time
}

// NewManager creates a new observability manager
func NewManager(logger *zap.SugaredLogger, config Config) (*Manager, error) {
	m := &Manager{
		logger:    logger,
		health:    NewHealthManager(logger),
		startTime: time.Now(),
	}
	if config.HealthTimeout > 0 {
		m.health.SetTimeout(config.HealthTimeout)
	}

	if config.Metrics {
		m.metrics = NewMetricsManager(logger)
	}

	tracing, err := NewTracingManager(logger, config.Tracing)
	if err != nil {
		return nil, err
	}
	m.tracing = tracing

	return m, nil
}

// Health returns the health manager
func (m *Manager) Health() *HealthManager {
	return m.health
}

// Metrics returns the metrics manager, nil when metrics are disabled.
func (m *Manager) Metrics() *MetricsManager {
	return m.metrics
}

// Tracing returns the tracing manager
func (m *Manager) Tracing() *TracingManager {
	return m.tracing
}

// RegisterHealthChecker registers a health checker
func (m *Manager) RegisterHealthChecker(checker HealthChecker) {
	m.health.AddHealthChecker(checker)
}

// RegisterReadinessChecker registers a readiness checker
func (m *Manager) RegisterReadinessChecker(checker ReadinessChecker) {
	m.health.AddReadinessChecker(checker)
}

// RegisterAuxiliaryChecker registers an informational health checker
func (m *Manager) RegisterAuxiliaryChecker(checker HealthChecker) {
	m.health.AddAuxiliaryChecker(checker)
}

// Mount registers /healthz, /readyz and /metrics on r.
func (m *Manager) Mount(r chi.Router) {
	r.Get("/healthz", m.health.HealthzHandler())
	r.Get("/readyz", m.health.ReadyzHandler())

	if m.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			m.metrics.SetUptime(m.startTime)
			m.metrics.Handler().ServeHTTP(w, req)
		})
	}
}

// HTTPMiddleware returns combined HTTP middleware for observability
func (m *Manager) HTTPMiddleware() func(http.Handler) http.Handler {
	middlewares := make([]func(http.Handler) http.Handler, 0, 2)
	if m.metrics != nil {
		middlewares = append(middlewares, m.metrics.HTTPMiddleware())
	}
	middlewares = append(middlewares, m.tracing.HTTPMiddleware())

	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Close gracefully shuts down observability components
func (m *Manager) Close(ctx context.Context) error {
	if err := m.tracing.Close(ctx); err != nil {
		m.logger.Errorw("Failed to close tracing manager", "error", err)
		return err
	}
	return nil
}
