package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for openrollout.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Resource metrics
	appliesTotal  *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	resourceReady *prometheus.GaugeVec

	// Readiness polling metrics
	statusQueries *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec

	// Verification metrics
	checksExecuted *prometheus.CounterVec
	findingsTotal  *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of deployment runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of deployment runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		appliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_total",
				Help:      "Total number of resource applies",
			},
			[]string{"kind", "status"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Duration of resource applies in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		resourceReady: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_ready",
				Help:      "Current readiness of resources (1=ready, 0=not ready)",
			},
			[]string{"resource_id", "kind"},
		),

		statusQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_queries_total",
				Help:      "Total number of readiness status queries",
			},
			[]string{"kind"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Duration of readiness polling in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "outcome"},
		),

		checksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_executed_total",
				Help:      "Total number of verification checks executed",
			},
			[]string{"check", "result"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of verification findings",
			},
			[]string{"severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.appliesTotal,
		m.applyDuration,
		m.resourceReady,
		m.statusQueries,
		m.pollDuration,
		m.checksExecuted,
		m.findingsTotal,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordApply records a resource apply with its outcome and duration.
func (m *Metrics) RecordApply(kind, status string, duration time.Duration) {
	if m.appliesTotal == nil {
		return
	}
	m.appliesTotal.WithLabelValues(kind, status).Inc()
	m.applyDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetResourceReady sets the readiness gauge for a specific resource.
func (m *Metrics) SetResourceReady(resourceID, kind string, ready bool) {
	if m.resourceReady == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1.0
	}
	m.resourceReady.WithLabelValues(resourceID, kind).Set(value)
}

// RecordStatusQueries adds to the status query counter for a kind.
func (m *Metrics) RecordStatusQueries(kind string, queries int) {
	if m.statusQueries == nil {
		return
	}
	m.statusQueries.WithLabelValues(kind).Add(float64(queries))
}

// RecordPoll records a completed readiness polling loop.
func (m *Metrics) RecordPoll(kind, outcome string, duration time.Duration) {
	if m.pollDuration == nil {
		return
	}
	m.pollDuration.WithLabelValues(kind, outcome).Observe(duration.Seconds())
}

// RecordCheck records the execution of a verification check.
func (m *Metrics) RecordCheck(check, result string) {
	if m.checksExecuted == nil {
		return
	}
	m.checksExecuted.WithLabelValues(check, result).Inc()
}

// RecordFinding records a verification finding by severity.
func (m *Metrics) RecordFinding(severity string) {
	if m.findingsTotal == nil {
		return
	}
	m.findingsTotal.WithLabelValues(severity).Inc()
}

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

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
