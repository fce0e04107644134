package stability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalibrationAnchors(t *testing.T) {
	assert.Equal(t, 1.0, Score(0))
	assert.InDelta(t, 0.5, Score(0.2), 1e-12)
	assert.Greater(t, Score(0.02), 0.95)
	assert.Less(t, Score(2.0), 0.05)
}

func TestScoreStrictlyDecreasing(t *testing.T) {
	prev := Score(0)
	for i := 1; i <= 200; i++ {
		s := Score(float64(i) * 0.01)
		if s >= prev {
			t.Fatalf("score not decreasing at iqr=%.2f: %v >= %v", float64(i)*0.01, s, prev)
		}
		if s <= 0 || s > 1 {
			t.Fatalf("score %v out of (0,1]", s)
		}
		prev = s
	}
}

func TestFromIQRFloorsParameters(t *testing.T) {
	s := FromIQR(0.1, 0, 0)
	assert.False(t, s != s, "NaN score")
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestFromIQRStaysPositiveOnOverflow(t *testing.T) {
	for _, iqr := range []float64{1e300, 1e308} {
		s := FromIQR(iqr, DefaultScale, DefaultAlpha)
		assert.Greater(t, s, 0.0, "iqr=%g", iqr)
		assert.LessOrEqual(t, s, 1.0, "iqr=%g", iqr)
	}
}

func TestBands(t *testing.T) {
	cases := []struct {
		iqr  float64
		want Band
	}{
		{0, BandHigh},
		{0.05, BandHigh},
		{0.051, BandMedium},
		{0.30, BandMedium},
		{0.31, BandLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DefaultBand(c.iqr), "iqr=%v", c.iqr)
	}
}

func TestCompute(t *testing.T) {
	score, iqr := Compute([]float64{1, 1, 1, 1})
	assert.Equal(t, 0.0, iqr)
	assert.Equal(t, 1.0, score)

	score, iqr = Compute([]float64{0, 0.1, 0.2, 0.3, 0.4})
	assert.InDelta(t, 0.2, iqr, 1e-12)
	assert.InDelta(t, 0.5, score, 1e-9)
}
