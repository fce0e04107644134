package gate

// #region gate-name
// Name identifies one quality gate.
type Name string

const (
	GateCIWidth   Name = "ci_width"
	GateStability Name = "stability"
	GateImbalance Name = "imbalance"
)

// #endregion gate-name

// #region gate-config
// GateConfig holds the thresholds a stage must satisfy to stop.
type GateConfig struct {
	CIWidthMax    float64 `json:"ci_width_max" yaml:"ci_width_max" validate:"gt=0,lte=1"`
	StabilityMin  float64 `json:"stability_min" yaml:"stability_min" validate:"gt=0,lte=1"`
	ImbalanceMax  float64 `json:"imbalance_max" yaml:"imbalance_max" validate:"gte=1"`
	ImbalanceWarn float64 `json:"imbalance_warn" yaml:"imbalance_warn" validate:"gte=1"`
}

// DefaultGateConfig returns 0.20 / 0.70 / 1.50 / 1.25.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		CIWidthMax:    0.20,
		StabilityMin:  0.70,
		ImbalanceMax:  1.50,
		ImbalanceWarn: 1.25,
	}
}

// #endregion gate-config

// #region metrics
// Metrics are the stage statistics the gates read.
type Metrics struct {
	CIWidth        float64
	Stability      float64
	ImbalanceRatio float64
}

// #endregion metrics

// #region gate-report
// Check is one gate's observed value, threshold and verdict.
type Check struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Pass      bool    `json:"pass"`
}

// GateReport is computed fresh for every stage.
type GateReport struct {
	CIWidth   Check `json:"ci_width"`
	Stability Check `json:"stability"`
	Imbalance Check `json:"imbalance"`
	// ImbalanceWarning is set when imbalance exceeds the warn threshold.
	// It never blocks a stop.
	ImbalanceWarning bool `json:"imbalance_warning"`
}

// #endregion gate-report
