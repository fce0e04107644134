package aggregate

import "errors"

// #region errors
// ErrNoTemplates is returned when clustered aggregation receives no template groups.
var ErrNoTemplates = errors.New("aggregate: no templates to aggregate")

// ErrNoSamples is returned when flat aggregation receives no values.
var ErrNoSamples = errors.New("aggregate: no samples to aggregate")

// #endregion errors

// #region center
// Center selects how per-template (or bootstrap) means are combined.
type Center string

const (
	CenterMean    Center = "mean"
	CenterTrimmed Center = "trimmed"
)

// Method tags reported in diagnostics.
const (
	MethodSimple           = "bootstrap_mean"
	MethodClusteredMean    = "cluster_bootstrap_mean"
	MethodClusteredTrimmed = "cluster_bootstrap_trimmed"
)

// #endregion center

// #region options
// Options controls a bootstrap run. Seed must be supplied by the caller.
type Options struct {
	Bootstrap int     // resample iterations B
	Center    Center  // clustered only
	Trim      float64 // fraction dropped from each tail when Center is trimmed
	FixedM    int     // clustered only: inner resample size, 0 = native group size
	Seed      uint64
}

// DefaultOptions returns B=5000 with a 20% symmetric trim.
func DefaultOptions() Options {
	return Options{
		Bootstrap: 5000,
		Center:    CenterTrimmed,
		Trim:      0.2,
	}
}

// #endregion options

// #region result
// Result is the output of either estimator. Point, Lo and Hi are in logit
// space; the Prob* fields are the same values mapped back to probability.
type Result struct {
	Point       float64     `json:"point_logit"`
	Lo          float64     `json:"lo_logit"`
	Hi          float64     `json:"hi_logit"`
	Prob        float64     `json:"prob_true"`
	ProbLo      float64     `json:"ci_lo"`
	ProbHi      float64     `json:"ci_hi"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// CIWidth is hi - lo in probability space.
func (r Result) CIWidth() float64 {
	return r.ProbHi - r.ProbLo
}

// Diagnostics describes the data behind a Result. Template fields are only
// populated by the clustered estimator.
type Diagnostics struct {
	Method         string             `json:"method"`
	N              int                `json:"n"`
	Templates      int                `json:"templates,omitempty"`
	Counts         map[string]int     `json:"counts,omitempty"`
	TemplateMeans  map[string]float64 `json:"template_means,omitempty"`
	ImbalanceRatio float64            `json:"imbalance_ratio,omitempty"`
	IQR            float64            `json:"template_iqr"`
}

// #endregion result
