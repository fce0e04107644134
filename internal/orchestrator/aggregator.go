package orchestrator

import (
	"fmt"
	"slices"

	"github.com/peakyragnar/hx-sub001/internal/aggregate"
	"github.com/peakyragnar/hx-sub001/internal/stability"
)

// ClusteredAggregator is the default StageAggregator: cluster bootstrap with
// the configured center, then stability from the IQR of per-template means.
func ClusteredAggregator(groups map[string][]float64, opts aggregate.Options) (StageStats, error) {
	res, err := aggregate.Clustered(groups, opts)
	if err != nil {
		return StageStats{}, fmt.Errorf("clustered aggregate: %w", err)
	}

	keys := make([]string, 0, len(res.Diagnostics.TemplateMeans))
	for k := range res.Diagnostics.TemplateMeans {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	means := make([]float64, len(keys))
	for i, k := range keys {
		means[i] = res.Diagnostics.TemplateMeans[k]
	}
	score, iqr := stability.Compute(means)

	return StageStats{
		Prob:           res.Prob,
		PointLogit:     res.Point,
		CILo:           res.ProbLo,
		CIHi:           res.ProbHi,
		CIWidth:        res.CIWidth(),
		Stability:      score,
		IQR:            iqr,
		ImbalanceRatio: res.Diagnostics.ImbalanceRatio,
		Method:         res.Diagnostics.Method,
		TemplateCounts: res.Diagnostics.Counts,
		TemplateMeans:  res.Diagnostics.TemplateMeans,
	}, nil
}

// flatEstimate runs the template-blind bootstrap over every logit.
func flatEstimate(groups map[string][]float64, opts aggregate.Options) *FlatEstimate {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var all []float64
	for _, k := range keys {
		all = append(all, groups[k]...)
	}
	res, err := aggregate.Simple(all, opts)
	if err != nil {
		return nil
	}
	return &FlatEstimate{Prob: res.Prob, CILo: res.ProbLo, CIHi: res.ProbHi}
}
