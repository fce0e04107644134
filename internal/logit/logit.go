package logit

import "math"

// #region bounds
const (
	// ProbEpsilon keeps probabilities away from 0 and 1 before the log-odds transform.
	ProbEpsilon = 1e-6
	// MaxLogit bounds the exponent in ToProb so math.Exp never overflows.
	MaxLogit = 709.0
)

// #endregion bounds

// #region transform
// ToLogit returns ln(p/(1-p)) with p clamped to [ProbEpsilon, 1-ProbEpsilon].
func ToLogit(p float64) float64 {
	p = clamp(p, ProbEpsilon, 1-ProbEpsilon)
	return math.Log(p / (1 - p))
}

// ToProb returns the logistic 1/(1+e^-x) with x clamped to [-MaxLogit, MaxLogit].
func ToProb(x float64) float64 {
	x = clamp(x, -MaxLogit, MaxLogit)
	return 1 / (1 + math.Exp(-x))
}

// ToLogits transforms a slice of probabilities.
func ToLogits(ps []float64) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = ToLogit(p)
	}
	return out
}

// #endregion transform

// #region helpers
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
