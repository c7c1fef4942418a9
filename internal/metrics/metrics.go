package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xmlongan/jmomden/pkg/denorig"
	"github.com/xmlongan/jmomden/pkg/numerr"
)

const namespace = "jmomden"

// Metrics holds the Prometheus collectors for model builds and evaluations.
// Collectors live on a private registry so that several instances can
// coexist in one process. A nil *Metrics discards all observations.
type Metrics struct {
	registry *prometheus.Registry

	// Model construction
	BuildDuration *prometheus.HistogramVec
	ActiveModels  prometheus.Gauge

	// Evaluation
	Evaluations     *prometheus.CounterVec
	EvaluatedPoints *prometheus.CounterVec
	Failures        *prometheus.CounterVec

	// Positivity repair
	Repairs        prometheus.Counter
	RepairedValues prometheus.Counter

	// Snapshot cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Time to build a density approximation",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"family", "result"},
		),

		ActiveModels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_models",
				Help:      "Number of models held in memory",
			},
		),

		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Density evaluations by operation",
			},
			[]string{"op"},
		),

		EvaluatedPoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluated_points_total",
				Help:      "Points evaluated by operation",
			},
			[]string{"op"},
		),

		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Failed builds and evaluations by operation and kind",
			},
			[]string{"op", "kind"},
		),

		Repairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Conditional evaluations that needed positivity repair",
			},
		),

		RepairedValues: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repaired_values_total",
				Help:      "Non-positive density values replaced by repair",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Snapshot lookups served by tier",
			},
			[]string{"tier"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Snapshot lookups not found by tier",
			},
			[]string{"tier"},
		),
	}

	m.registry.MustRegister(
		m.BuildDuration,
		m.ActiveModels,
		m.Evaluations,
		m.EvaluatedPoints,
		m.Failures,
		m.Repairs,
		m.RepairedValues,
		m.CacheHits,
		m.CacheMisses,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBuild records a model build
func (m *Metrics) ObserveBuild(family string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.Failures.WithLabelValues("build", Kind(err)).Inc()
	}
	m.BuildDuration.WithLabelValues(family, result).Observe(d.Seconds())
}

// ObserveEval records an evaluation of n points
func (m *Metrics) ObserveEval(op string, n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Failures.WithLabelValues(op, Kind(err)).Inc()
		return
	}
	m.Evaluations.WithLabelValues(op).Inc()
	m.EvaluatedPoints.WithLabelValues(op).Add(float64(n))
}

// ObserveRepair implements denorig.RepairObserver
func (m *Metrics) ObserveRepair(r denorig.Repair) {
	if m == nil {
		return
	}
	m.Repairs.Inc()
	m.RepairedValues.Add(float64(r.Count))
}

// SetActiveModels updates the model gauge
func (m *Metrics) SetActiveModels(n int) {
	if m != nil {
		m.ActiveModels.Set(float64(n))
	}
}

// CacheHit records a snapshot found in tier
func (m *Metrics) CacheHit(tier string) {
	if m != nil {
		m.CacheHits.WithLabelValues(tier).Inc()
	}
}

// CacheMiss records a snapshot missing from tier
func (m *Metrics) CacheMiss(tier string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(tier).Inc()
	}
}

// Kind classifies an error for the failure counter
func Kind(err error) string {
	switch {
	case errors.Is(err, numerr.ErrDegenerate):
		return "degenerate"
	case errors.Is(err, numerr.ErrShape):
		return "shape"
	case errors.Is(err, numerr.ErrSequencing):
		return "sequencing"
	case errors.Is(err, numerr.ErrDivision):
		return "division"
	default:
		return "other"
	}
}

var _ denorig.RepairObserver = (*Metrics)(nil)
