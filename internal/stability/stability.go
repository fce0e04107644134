package stability

import (
	"math"

	"github.com/peakyragnar/hx-sub001/internal/aggregate"
)

// #region defaults
const (
	DefaultScale     = 0.2
	DefaultAlpha     = 1.7
	DefaultHighMax   = 0.05
	DefaultMediumMax = 0.30

	minParam = 1e-9
)

// Band is a categorical reading of template spread.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// #endregion defaults

// #region score
// FromIQR maps the interquartile range of per-template estimates to
// 1/(1+(iqr/s)^alpha). iqr=0 gives 1 and iqr=s gives 0.5.
func FromIQR(iqr, s, alpha float64) float64 {
	s = math.Max(s, minParam)
	alpha = math.Max(alpha, minParam)
	if iqr <= 0 {
		return 1.0
	}
	v := 1.0 / (1.0 + math.Pow(iqr/s, alpha))
	if v <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return v
}

// Score is FromIQR with the default calibration.
func Score(iqr float64) float64 {
	return FromIQR(iqr, DefaultScale, DefaultAlpha)
}

// BandFor classifies iqr with inclusive upper bounds.
func BandFor(iqr, highMax, mediumMax float64) Band {
	switch {
	case iqr <= highMax:
		return BandHigh
	case iqr <= mediumMax:
		return BandMedium
	default:
		return BandLow
	}
}

// DefaultBand is BandFor with the default thresholds.
func DefaultBand(iqr float64) Band {
	return BandFor(iqr, DefaultHighMax, DefaultMediumMax)
}

// Compute returns the default-calibrated score and the IQR of values,
// typically the per-template mean logits.
func Compute(values []float64) (score, iqr float64) {
	iqr = aggregate.IQR(values)
	return Score(iqr), iqr
}

// #endregion score
