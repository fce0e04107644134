package logit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	for _, p := range []float64{1e-5, 0.001, 0.1, 0.25, 0.5, 0.55, 0.75, 0.9, 0.999, 1 - 1e-5} {
		assert.InDelta(t, p, ToProb(ToLogit(p)), 1e-9, "p=%v", p)
	}
}

func TestToLogitHalfIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ToLogit(0.5))
}

func TestToLogitStrictlyIncreasing(t *testing.T) {
	prev := math.Inf(-1)
	for i := 1; i < 1000; i++ {
		x := ToLogit(float64(i) / 1000)
		if x <= prev {
			t.Fatalf("ToLogit not increasing at p=%v: %v <= %v", float64(i)/1000, x, prev)
		}
		prev = x
	}
}

func TestExtremesAreClamped(t *testing.T) {
	lo := ToLogit(ProbEpsilon)
	hi := ToLogit(1 - ProbEpsilon)
	for _, p := range []float64{0, 1e-10} {
		x := ToLogit(p)
		assert.False(t, math.IsInf(x, 0) || math.IsNaN(x), "p=%v gave %v", p, x)
		assert.Equal(t, lo, x)
	}
	for _, p := range []float64{1, 1 - 1e-10} {
		x := ToLogit(p)
		assert.False(t, math.IsInf(x, 0) || math.IsNaN(x), "p=%v gave %v", p, x)
		assert.Equal(t, hi, x)
	}
}

func TestToProbOverflowGuard(t *testing.T) {
	assert.Equal(t, 1.0, ToProb(1e6))
	assert.InDelta(t, 0.0, ToProb(-1e6), 1e-300)
	assert.False(t, math.IsNaN(ToProb(math.Inf(-1))))
}

func TestToLogits(t *testing.T) {
	got := ToLogits([]float64{0.5, 0.5})
	assert.Equal(t, []float64{0, 0}, got)
}
