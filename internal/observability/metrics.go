package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/rotation"
)

const namespace = "loginfront"

// MetricsManager manages Prometheus metrics. It implements rotation.Recorder
// and store.WriteRecorder.
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	uptime        prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	logins        *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	storeWrites   *prometheus.CounterVec
	phase         *prometheus.GaugeVec
	secretAge     prometheus.Gauge
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	mm.initMetrics()
	mm.registerMetrics()

	return mm
}

func (mm *MetricsManager) initMetrics() {
	mm.uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since the application started",
	})

	mm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	mm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	mm.logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		},
		[]string{"result"}, // success, rejected, unavailable, error
	)

	mm.cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secret_cycles_total",
			Help:      "Client secret fetch and rotation cycles",
		},
		[]string{"kind", "result", "failure_kind"},
	)

	mm.cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "secret_cycle_duration_seconds",
			Help:      "Duration of client secret cycles",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind", "result"},
	)

	mm.storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secret_store_writes_total",
			Help:      "Secret store write attempts",
		},
		[]string{"backend", "result"},
	)

	mm.phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_phase",
			Help:      "1 for the credential manager's current phase, 0 otherwise",
		},
		[]string{"phase"},
	)

	mm.secretAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "secret_installed_timestamp_seconds",
		Help:      "Unix time the cached client secret was installed",
	})
}

func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		mm.uptime,
		mm.httpRequests,
		mm.httpDuration,
		mm.logins,
		mm.cycles,
		mm.cycleDuration,
		mm.storeWrites,
		mm.phase,
		mm.secretAge,
	)

	mm.registry.MustRegister(collectors.NewGoCollector())
	mm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for the /metrics endpoint
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom metrics
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// SetUptime sets the uptime metric
func (mm *MetricsManager) SetUptime(startTime time.Time) {
	mm.uptime.Set(time.Since(startTime).Seconds())
}

// RecordHTTPRequest records an HTTP request
func (mm *MetricsManager) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	mm.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	mm.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLogin counts one login attempt.
func (mm *MetricsManager) RecordLogin(result string) {
	mm.logins.WithLabelValues(result).Inc()
}

// RecordCycle implements rotation.Recorder.
func (mm *MetricsManager) RecordCycle(kind, result, failureKind string, duration time.Duration) {
	mm.cycles.WithLabelValues(kind, result, failureKind).Inc()
	mm.cycleDuration.WithLabelValues(kind, result).Observe(duration.Seconds())
}

// RecordSecretInstalled implements rotation.Recorder.
func (mm *MetricsManager) RecordSecretInstalled(at time.Time) {
	mm.secretAge.Set(float64(at.Unix()))
}

// SetPhase implements rotation.Recorder.
func (mm *MetricsManager) SetPhase(phase string) {
	for _, p := range rotation.Phases {
		v := 0.0
		if string(p) == phase {
			v = 1
		}
		mm.phase.WithLabelValues(string(p)).Set(v)
	}
}

// RecordStoreWrite implements store.WriteRecorder.
func (mm *MetricsManager) RecordStoreWrite(backend, result string) {
	mm.storeWrites.WithLabelValues(backend, result).Inc()
}

// HTTPMiddleware records request counts and latency labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (mm *MetricsManager) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			mm.RecordHTTPRequest(r.Method, route, ww.statusCode, time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
