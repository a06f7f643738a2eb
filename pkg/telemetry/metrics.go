package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Control outcomes recorded by RecordControlEvaluated.
const (
	ResultPassed = "passed"
	ResultFailed = "failed"
)

// Skip reasons recorded by RecordControlSkipped.
const (
	SkipMetricNotRegistered = "metric_not_registered"
	SkipMissingRole         = "missing_role"
	SkipExpected            = "expected_skip"
	SkipUnexpected          = "unexpected_failure"
	SkipMetricAbsent        = "metric_absent"
)

// Metrics provides Prometheus metrics for policy evaluation. A nil *Metrics
// and a disabled one are both no-ops.
type Metrics struct {
	config MetricsConfig

	controlsEvaluated *prometheus.CounterVec
	controlsSkipped   *prometheus.CounterVec
	metricDuration    *prometheus.HistogramVec
	policiesLoaded    *prometheus.CounterVec
	enforcements      *prometheus.CounterVec
	gateDecisions     *prometheus.CounterVec

	registry *prometheus.Registry
}

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

		controlsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "controls_evaluated_total",
				Help:      "Total number of controls evaluated",
			},
			[]string{"result"},
		),
		controlsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "controls_skipped_total",
				Help:      "Total number of controls skipped",
			},
			[]string{"reason"},
		),
		metricDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "metric_compute_duration_seconds",
				Help:      "Duration of metric computations in seconds",
				Buckets:   buckets,
			},
			[]string{"metric"},
		),
		policiesLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policies_loaded_total",
				Help:      "Total number of policy load attempts",
			},
			[]string{"status"},
		),
		enforcements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcements_total",
				Help:      "Total number of enforcement runs",
			},
			[]string{"status"},
		),
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_decisions_total",
				Help:      "Total number of release gate decisions",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.controlsEvaluated,
		m.controlsSkipped,
		m.metricDuration,
		m.policiesLoaded,
		m.enforcements,
		m.gateDecisions,
	)

	return m, nil
}

// RecordControlEvaluated counts a control that produced a result.
func (m *Metrics) RecordControlEvaluated(passed bool) {
	if m == nil || m.controlsEvaluated == nil {
		return
	}
	result := ResultFailed
	if passed {
		result = ResultPassed
	}
	m.controlsEvaluated.WithLabelValues(result).Inc()
}

// RecordControlSkipped counts a skipped control.
func (m *Metrics) RecordControlSkipped(reason string) {
	if m == nil || m.controlsSkipped == nil {
		return
	}
	m.controlsSkipped.WithLabelValues(reason).Inc()
}

// ObserveMetricDuration records how long a metric computation took.
func (m *Metrics) ObserveMetricDuration(metric string, d time.Duration) {
	if m == nil || m.metricDuration == nil {
		return
	}
	m.metricDuration.WithLabelValues(metric).Observe(d.Seconds())
}

// RecordPolicyLoad counts a policy load attempt.
func (m *Metrics) RecordPolicyLoad(ok bool) {
	if m == nil || m.policiesLoaded == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.policiesLoaded.WithLabelValues(status).Inc()
}

// RecordEnforcement counts an enforcement run by status.
func (m *Metrics) RecordEnforcement(status string) {
	if m == nil || m.enforcements == nil {
		return
	}
	m.enforcements.WithLabelValues(status).Inc()
}

// RecordGateDecision counts a gate decision.
func (m *Metrics) RecordGateDecision(allowed bool) {
	if m == nil || m.gateDecisions == nil {
		return
	}
	outcome := "allow"
	if !allowed {
		outcome = "deny"
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

// Registry returns the private Prometheus registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics. The returned
// server is nil when metrics are disabled.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) *http.Server {
	if m == nil || !m.config.Enabled {
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server error")
		}
	}()

	return server
}
