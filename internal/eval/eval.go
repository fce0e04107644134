package eval

import (
	"fmt"
	"math"

	"github.com/peakyragnar/hx-sub001/internal/sampler"
)

// #region eval-harness
// EvalHarness audits a stage snapshot for internal consistency before it is frozen.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks that the reported width equals hi-lo, the interval is ordered,
// stability lies in (0,1] and imbalance matches the per-template counts.
// Interval coverage of the point estimate is reported but never fails.
func (h *EvalHarness) Run(s SnapshotStats) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	// 1. Width consistency
	drift := math.Abs(s.CIWidth - (s.CIHi - s.CILo))
	widthPass := drift <= h.config.WidthTolerance
	metrics = append(metrics, EvalMetric{Name: "ci_width_drift", Value: drift, Pass: widthPass})
	if !widthPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("ci_width %.6f != hi-lo %.6f", s.CIWidth, s.CIHi-s.CILo))
	}

	// 2. Ordered interval inside [0,1]
	orderPass := s.CILo <= s.CIHi && s.CILo >= 0 && s.CIHi <= 1
	metrics = append(metrics, EvalMetric{Name: "ci_ordered", Value: s.CIHi - s.CILo, Pass: orderPass})
	if !orderPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("interval [%.6f, %.6f] not ordered in [0,1]", s.CILo, s.CIHi))
	}

	// 3. Stability range
	stabPass := s.Stability > 0 && s.Stability <= 1
	metrics = append(metrics, EvalMetric{Name: "stability_range", Value: s.Stability, Pass: stabPass})
	if !stabPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("stability %.6f outside (0,1]", s.Stability))
	}

	// 4. Imbalance recomputed from counts
	if s.Counts != nil {
		counts := make([]int, 0, len(s.Counts))
		for _, c := range s.Counts {
			counts = append(counts, c)
		}
		want := sampler.ImbalanceRatio(counts)
		imbDrift := math.Abs(want - s.ImbalanceRatio)
		imbPass := imbDrift <= h.config.ImbalanceTolerance
		metrics = append(metrics, EvalMetric{Name: "imbalance_drift", Value: imbDrift, Pass: imbPass})
		if !imbPass {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("imbalance %.6f != max/min %.6f", s.ImbalanceRatio, want))
		}
	}

	// 5. Coverage: informational only
	covered := s.CILo <= s.Prob && s.Prob <= s.CIHi
	metrics = append(metrics, EvalMetric{Name: "point_covered", Value: s.Prob, Pass: covered})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("audit failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("audit failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// Metric returns the named metric from r, if present.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion helpers
