package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics for the admission pipeline. All record
// helpers are nil-safe so callers can run without metrics wired.
type Metrics struct {
	AdmissionChecks *prometheus.CounterVec
	Denials         *prometheus.CounterVec
	Violations      *prometheus.CounterVec
	CheckLatency    prometheus.Histogram
}

// NewMetrics creates and registers the metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AdmissionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiguard_admission_checks_total",
				Help: "Total number of admission checks.",
			},
			[]string{"result"},
		),
		Denials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiguard_denials_total",
				Help: "Total number of denied requests by pipeline stage.",
			},
			[]string{"stage"},
		),
		Violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiguard_violations_total",
				Help: "Total number of recorded security violations.",
			},
			[]string{"type", "severity"},
		),
		CheckLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apiguard_check_latency_seconds",
				Help:    "Latency of admission checks.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordCheck records one admission decision and its latency.
func (m *Metrics) RecordCheck(allowed bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.AdmissionChecks.WithLabelValues(result).Inc()
	m.CheckLatency.Observe(duration.Seconds())
}

// RecordDenial records a denial attributed to one pipeline stage.
func (m *Metrics) RecordDenial(stage string) {
	if m == nil {
		return
	}
	m.Denials.WithLabelValues(stage).Inc()
}

// RecordViolation records a security violation by type and severity.
func (m *Metrics) RecordViolation(violationType, severity string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(violationType, severity).Inc()
}
