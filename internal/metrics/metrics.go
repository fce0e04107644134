package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for estimation runs. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Queries            *prometheus.CounterVec
	Retries            prometheus.Counter
	Exhaustions        prometheus.Counter
	Decisions          *prometheus.CounterVec
	AggregationSeconds prometheus.Histogram
	CIWidth            prometheus.Histogram
	StagesPerRun       prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimprob_queries_total",
				Help: "Evaluation queries issued, by result",
			},
			[]string{"result"}, // ok, error
		),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "claimprob_query_retries_total",
			Help: "Replicate queries retried after a failure",
		}),
		Exhaustions: f.NewCounter(prometheus.CounterOpts{
			Name: "claimprob_sampling_exhaustions_total",
			Help: "Runs aborted because one template exceeded its failure budget",
		}),
		Decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimprob_stage_decisions_total",
				Help: "Controller decisions by action kind",
			},
			[]string{"action"}, // stop_pass, escalate, stop_limits
		),
		AggregationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimprob_aggregation_seconds",
			Help:    "Wall time of one stage's bootstrap aggregation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		CIWidth: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimprob_ci_width",
			Help:    "CI95 width in probability space per stage",
			Buckets: []float64{0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.6, 0.8, 1.0},
		}),
		StagesPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimprob_stages_per_run",
			Help:    "Stages executed before a run stopped",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}),
	}
}

// #region recorders
// ObserveQuery counts one evaluator call by outcome.
func (m *Metrics) ObserveQuery(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Queries.WithLabelValues(result).Inc()
}

// ObserveRetry counts a failed query that will be retried.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// ObserveExhaustion counts a template whose failure budget ran out.
func (m *Metrics) ObserveExhaustion() {
	if m == nil {
		return
	}
	m.Exhaustions.Inc()
}

// ObserveDecision counts a stage decision by kind.
func (m *Metrics) ObserveDecision(kind string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind).Inc()
}

// ObserveAggregation records aggregation latency and the resulting CI width.
func (m *Metrics) ObserveAggregation(d time.Duration, ciWidth float64) {
	if m == nil {
		return
	}
	m.AggregationSeconds.Observe(d.Seconds())
	m.CIWidth.Observe(ciWidth)
}

// ObserveRun records how many stages a finished run took.
func (m *Metrics) ObserveRun(stages int) {
	if m == nil {
		return
	}
	m.StagesPerRun.Observe(float64(stages))
}

// #endregion recorders
