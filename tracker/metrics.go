package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

// Metrics are registered on a caller-owned registry so several services
// (and tests) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	mutations      *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	evalDuration   prometheus.Histogram
	aggregateCache *prometheus.CounterVec
	activeRoutines prometheus.Gauge
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routine_mutations_total",
			Help: "Routine writes by operation and outcome",
		}, []string{"op", "result"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routine_evaluations_total",
			Help: "Progress folds by outcome",
		}, []string{"result"}),
		evalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "routine_evaluation_duration_seconds",
			Help:    "Duration of progress folds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25},
		}),
		aggregateCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routine_aggregate_cache_total",
			Help: "Aggregate cache lookups by outcome",
		}, []string{"outcome"}),
		activeRoutines: f.NewGauge(prometheus.GaugeOpts{
			Name: "routine_active_routines",
			Help: "Non-archived routines seen by the last warm pass",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
