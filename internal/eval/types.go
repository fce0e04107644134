package eval

// #region eval-config
// EvalConfig holds tolerances for snapshot consistency checks.
type EvalConfig struct {
	WidthTolerance     float64 // |ci_width - (hi - lo)| allowed
	ImbalanceTolerance float64 // |reported - recomputed imbalance| allowed
}

// DefaultEvalConfig returns tight floating-point tolerances.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		WidthTolerance:     1e-9,
		ImbalanceTolerance: 1e-9,
	}
}

// #endregion eval-config

// #region snapshot-stats
// SnapshotStats is the subset of a stage snapshot the audit reads.
type SnapshotStats struct {
	Prob           float64
	CILo           float64
	CIHi           float64
	CIWidth        float64
	Stability      float64
	ImbalanceRatio float64
	Counts         map[string]int // nil skips the imbalance recomputation
}

// #endregion snapshot-stats

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a snapshot audit.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
