// Package telemetry wraps the process-wide Prometheus registry for the
// diagnostics pipeline: pass duration, skip counts, and cache hit ratio
// (SPEC_FULL.md [DOMAIN STACK]).
//
// Grounded on the teacher's internal/interfaces/http/metrics.go
// (MetricsRegistry struct, StepTimer, prometheus.MustRegister-at-construction
// pattern), trimmed to the handful of series this engine's own pipeline
// passes emit rather than the teacher's full scanner/regime/websocket set.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus series the pipeline and its satellite jobs
// (outcome evaluator, calibration analyzer, scheduler) emit.
type Metrics struct {
	PassDuration *prometheus.HistogramVec
	PassResults  *prometheus.CounterVec

	CacheHitRatio prometheus.Gauge
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter

	OutcomesEvaluated prometheus.Counter
	OutcomesSkipped   prometheus.Counter
	OutcomesErrored   prometheus.Counter

	AnomalyAlerts *prometheus.CounterVec

	lastHits, lastMisses int64
}

// NewMetrics constructs and registers the pipeline's metric series against
// reg. Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global default registry across package-level test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketdoctor_pass_duration_seconds",
				Help:    "Duration of one (symbol, target_tf) analytical pass.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		),
		PassResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdoctor_pass_total",
				Help: "Total analytical passes by result.",
			},
			[]string{"result"},
		),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdoctor_score_cache_hit_ratio",
			Help: "Current score cache hit ratio (0..1).",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdoctor_score_cache_hits_total",
			Help: "Total score cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdoctor_score_cache_misses_total",
			Help: "Total score cache misses.",
		}),
		OutcomesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdoctor_outcomes_evaluated_total",
			Help: "Total snapshot/horizon pairs successfully evaluated.",
		}),
		OutcomesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdoctor_outcomes_skipped_total",
			Help: "Total snapshot/horizon pairs skipped (insufficient bars).",
		}),
		OutcomesErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdoctor_outcomes_errored_total",
			Help: "Total snapshot/horizon pairs that errored during evaluation.",
		}),
		AnomalyAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdoctor_anomaly_alerts_total",
				Help: "Total anomaly alerts raised by type.",
			},
			[]string{"type", "severity"},
		),
	}

	reg.MustRegister(
		m.PassDuration, m.PassResults,
		m.CacheHitRatio, m.CacheHits, m.CacheMisses,
		m.OutcomesEvaluated, m.OutcomesSkipped, m.OutcomesErrored,
		m.AnomalyAlerts,
	)
	return m
}

// PassTimer tracks one analytical pass's wall-clock duration.
type PassTimer struct {
	metrics *Metrics
	start   time.Time
}

// StartPass begins timing an analytical pass.
func (m *Metrics) StartPass() *PassTimer {
	return &PassTimer{metrics: m, start: time.Now()}
}

// Stop records the pass's duration and result.
func (t *PassTimer) Stop(result string) {
	t.metrics.PassDuration.WithLabelValues(result).Observe(time.Since(t.start).Seconds())
	t.metrics.PassResults.WithLabelValues(result).Inc()
}

// RecordCacheStats mirrors a cache.Stats cumulative snapshot onto the
// gauge/counters, adding only the delta since the previous call so repeated
// polling of the same cumulative counters doesn't double-count.
func (m *Metrics) RecordCacheStats(hits, misses int64, ratio float64) {
	m.CacheHitRatio.Set(ratio)
	if delta := hits - m.lastHits; delta > 0 {
		m.CacheHits.Add(float64(delta))
	}
	if delta := misses - m.lastMisses; delta > 0 {
		m.CacheMisses.Add(float64(delta))
	}
	m.lastHits, m.lastMisses = hits, misses
}
