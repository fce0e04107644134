package aggregate

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/peakyragnar/hx-sub001/internal/logit"
	"github.com/peakyragnar/hx-sub001/internal/sampler"
)

// #region simple
// Simple is the flat bootstrap: the point estimate is the mean of all logits
// and each of the B resamples draws len(logits) values uniformly with
// replacement, ignoring which template produced them.
func Simple(logits []float64, opts Options) (Result, error) {
	n := len(logits)
	if n == 0 {
		return Result{}, ErrNoSamples
	}
	b := bootstrapSize(opts)
	rng := newRNG(opts.Seed)

	point := mean(logits)
	means := make([]float64, b)
	draw := make([]float64, n)
	for i := range means {
		for j := range draw {
			draw[j] = logits[rng.IntN(n)]
		}
		means[i] = mean(draw)
	}
	lo, hi := interval(means)

	return newResult(point, lo, hi, Diagnostics{
		Method: MethodSimple,
		N:      n,
	}), nil
}

// #endregion simple

// #region clustered
// Clustered is the equal-by-template cluster bootstrap. Each template is
// reduced to the mean of its logits and those means are combined with the
// configured center, so a template's weight does not depend on how many
// replicates it has. Each bootstrap iteration resamples templates with
// replacement, then resamples min(m, group size) logits inside each chosen
// template, where m is FixedM or the native group size.
func Clustered(groups map[string][]float64, opts Options) (Result, error) {
	keys := make([]string, 0, len(groups))
	for k, vals := range groups {
		if len(vals) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Result{}, ErrNoTemplates
	}
	// map iteration order is random; the bootstrap must not depend on it
	slices.Sort(keys)

	centerFn, method := centerFunc(opts)
	b := bootstrapSize(opts)
	rng := newRNG(opts.Seed)

	t := len(keys)
	templateMeans := make([]float64, t)
	counts := make([]int, t)
	total := 0
	for i, k := range keys {
		templateMeans[i] = mean(groups[k])
		counts[i] = len(groups[k])
		total += counts[i]
	}
	point := centerFn(templateMeans)

	centers := make([]float64, b)
	bootMeans := make([]float64, t)
	inner := make([]float64, 0, slices.Max(counts))
	for i := range centers {
		for j := range bootMeans {
			group := groups[keys[rng.IntN(t)]]
			m := len(group)
			if opts.FixedM > 0 && opts.FixedM < m {
				m = opts.FixedM
			}
			inner = inner[:0]
			for range m {
				inner = append(inner, group[rng.IntN(len(group))])
			}
			bootMeans[j] = mean(inner)
		}
		centers[i] = centerFn(bootMeans)
	}
	lo, hi := interval(centers)

	diag := Diagnostics{
		Method:         method,
		N:              total,
		Templates:      t,
		Counts:         make(map[string]int, t),
		TemplateMeans:  make(map[string]float64, t),
		ImbalanceRatio: sampler.ImbalanceRatio(counts),
		IQR:            IQR(templateMeans),
	}
	for i, k := range keys {
		diag.Counts[k] = counts[i]
		diag.TemplateMeans[k] = templateMeans[i]
	}
	return newResult(point, lo, hi, diag), nil
}

// #endregion clustered

// #region center-funcs
// TrimmedMean drops floor(n*trim) values from each tail of the sorted data
// and averages the rest. Falls back to the plain mean when that would leave
// nothing.
func TrimmedMean(values []float64, trim float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	k := int(float64(n) * trim)
	if k <= 0 || 2*k >= n {
		return mean(values)
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return mean(sorted[k : n-k])
}

func centerFunc(opts Options) (func([]float64) float64, string) {
	if opts.Center == CenterTrimmed && opts.Trim > 0 {
		trim := opts.Trim
		return func(v []float64) float64 { return TrimmedMean(v, trim) }, MethodClusteredTrimmed
	}
	return mean, MethodClusteredMean
}

// ParseCenter accepts "mean" or "trimmed".
func ParseCenter(s string) (Center, error) {
	switch Center(s) {
	case CenterMean, CenterTrimmed:
		return Center(s), nil
	}
	return "", fmt.Errorf("unknown center method %q", s)
}

// #endregion center-funcs

// #region helpers
func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func bootstrapSize(opts Options) int {
	if opts.Bootstrap <= 0 {
		return DefaultOptions().Bootstrap
	}
	return opts.Bootstrap
}

func interval(stats []float64) (float64, float64) {
	sorted := slices.Clone(stats)
	slices.Sort(sorted)
	return percentileSorted(sorted, 2.5), percentileSorted(sorted, 97.5)
}

func newResult(point, lo, hi float64, diag Diagnostics) Result {
	return Result{
		Point:       point,
		Lo:          lo,
		Hi:          hi,
		Prob:        logit.ToProb(point),
		ProbLo:      logit.ToProb(lo),
		ProbHi:      logit.ToProb(hi),
		Diagnostics: diag,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// #endregion helpers
