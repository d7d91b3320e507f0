package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for core enumeration runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Enumeration metrics
	predicateChecks *prometheus.CounterVec
	coresFound      *prometheus.CounterVec
	coreSize        *prometheus.HistogramVec

	// Predicate adapter metrics
	predicateDuration *prometheus.HistogramVec
	predicateErrors   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// Check kinds for the predicate_checks_total counter.
const (
	CheckKindTotal  = "total"
	CheckKindActual = "actual"
)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of enumeration runs started",
			},
			[]string{"strategy"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of enumeration runs completed",
			},
			[]string{"strategy", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of enumeration runs in seconds",
				Buckets:   buckets,
			},
			[]string{"strategy"},
		),

		predicateChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predicate_checks_total",
				Help:      "Predicate checks by kind: total requested or actually evaluated",
			},
			[]string{"strategy", "kind"},
		),
		coresFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cores_found_total",
				Help:      "Total number of minimal cores discovered",
			},
			[]string{"strategy"},
		),
		coreSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "core_size",
				Help:      "Number of elements in discovered cores",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"strategy"},
		),

		predicateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "predicate_call_duration_seconds",
				Help:      "Duration of a single predicate evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"adapter"},
		),
		predicateErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predicate_errors_total",
				Help:      "Total number of predicate evaluations that returned an error",
			},
			[]string{"adapter"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of run errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of run errors by error code",
			},
			[]string{"code"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active enumeration runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.predicateChecks,
		m.coresFound,
		m.coreSize,
		m.predicateDuration,
		m.predicateErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(strategy string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(strategy).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a finished run with its status and duration.
func (m *Metrics) RecordRunCompleted(strategy, status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(strategy, status).Inc()
	m.runDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Enumeration Metrics

// AddChecks adds predicate check deltas for a strategy.
func (m *Metrics) AddChecks(strategy string, total, actual int64) {
	if m.predicateChecks == nil {
		return
	}
	if total > 0 {
		m.predicateChecks.WithLabelValues(strategy, CheckKindTotal).Add(float64(total))
	}
	if actual > 0 {
		m.predicateChecks.WithLabelValues(strategy, CheckKindActual).Add(float64(actual))
	}
}

// RecordCoreFound records a discovered core and its size.
func (m *Metrics) RecordCoreFound(strategy string, size int) {
	if m.coresFound == nil {
		return
	}
	m.coresFound.WithLabelValues(strategy).Inc()
	m.coreSize.WithLabelValues(strategy).Observe(float64(size))
}

// Predicate Metrics

// RecordPredicateCall records one predicate evaluation by an adapter.
func (m *Metrics) RecordPredicateCall(adapter string, duration time.Duration, err error) {
	if m.predicateDuration == nil {
		return
	}
	m.predicateDuration.WithLabelValues(adapter).Observe(duration.Seconds())
	if err != nil {
		m.predicateErrors.WithLabelValues(adapter).Inc()
	}
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := m.server
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", server.Addr).Msg("Metrics server failed")
		}
	}()

	return nil
}

// StopMetricsServer shuts the metrics server down if it was started.
func (m *Metrics) StopMetricsServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
