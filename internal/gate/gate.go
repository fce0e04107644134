package gate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// #region gate
// Gate checks stage statistics against a validated GateConfig.
type Gate struct {
	config GateConfig
}

// NewGate validates config and returns a gate.
func NewGate(config GateConfig) (*Gate, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Gate{config: config}, nil
}

// Config returns the thresholds in use.
func (g *Gate) Config() GateConfig {
	return g.config
}

// Evaluate compares m with every threshold. Width and imbalance are upper
// bounds, stability is a lower bound; all bounds are inclusive.
func (g *Gate) Evaluate(m Metrics) GateReport {
	return GateReport{
		CIWidth: Check{
			Value:     m.CIWidth,
			Threshold: g.config.CIWidthMax,
			Pass:      m.CIWidth <= g.config.CIWidthMax,
		},
		Stability: Check{
			Value:     m.Stability,
			Threshold: g.config.StabilityMin,
			Pass:      m.Stability >= g.config.StabilityMin,
		},
		Imbalance: Check{
			Value:     m.ImbalanceRatio,
			Threshold: g.config.ImbalanceMax,
			Pass:      m.ImbalanceRatio <= g.config.ImbalanceMax,
		},
		ImbalanceWarning: m.ImbalanceRatio > g.config.ImbalanceWarn,
	}
}

// #endregion gate

// #region report
// Passed reports whether every blocking gate passed.
func (r GateReport) Passed() bool {
	return r.CIWidth.Pass && r.Stability.Pass && r.Imbalance.Pass
}

// Failed lists the gates that did not pass, in fixed order.
func (r GateReport) Failed() []Name {
	var failed []Name
	if !r.CIWidth.Pass {
		failed = append(failed, GateCIWidth)
	}
	if !r.Stability.Pass {
		failed = append(failed, GateStability)
	}
	if !r.Imbalance.Pass {
		failed = append(failed, GateImbalance)
	}
	return failed
}

// Summary renders the failed gates as "ci_width 0.6000>0.2000, stability 0.5000<0.7000".
func (r GateReport) Summary() string {
	var parts []string
	if !r.CIWidth.Pass {
		parts = append(parts, fmt.Sprintf("%s %.4f>%.4f", GateCIWidth, r.CIWidth.Value, r.CIWidth.Threshold))
	}
	if !r.Stability.Pass {
		parts = append(parts, fmt.Sprintf("%s %.4f<%.4f", GateStability, r.Stability.Value, r.Stability.Threshold))
	}
	if !r.Imbalance.Pass {
		parts = append(parts, fmt.Sprintf("%s %.4f>%.4f", GateImbalance, r.Imbalance.Value, r.Imbalance.Threshold))
	}
	if len(parts) == 0 {
		return "all gates passed"
	}
	return strings.Join(parts, ", ")
}

// #endregion report

// #region validate
// ValidationError names the first threshold outside its valid range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid gate config: %s %s", e.Field, e.Reason)
}

// Validate enforces width/stability in (0,1] and imbalance thresholds >= 1.
func (c GateConfig) Validate() error {
	for _, v := range []float64{c.CIWidthMax, c.StabilityMin, c.ImbalanceMax, c.ImbalanceWarn} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "thresholds", Reason: "must be finite"}
		}
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("fails %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value())}
		}
		return fmt.Errorf("validate gate config: %w", err)
	}
	return nil
}

// #endregion validate
