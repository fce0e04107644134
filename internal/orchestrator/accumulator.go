package orchestrator

import (
	"slices"
	"sync"

	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/logit"
)

// accumulator holds every sample collected during a run, keyed by template.
// It only grows; samples from earlier stages are reused by later ones.
type accumulator struct {
	mu         sync.Mutex
	byTemplate map[int][]evaluator.Sample
}

func newAccumulator() *accumulator {
	return &accumulator{byTemplate: make(map[int][]evaluator.Sample)}
}

func (a *accumulator) add(s evaluator.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byTemplate[s.TemplateID] = append(a.byTemplate[s.TemplateID], s)
}

func (a *accumulator) count(templateID int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byTemplate[templateID])
}

func (a *accumulator) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, ss := range a.byTemplate {
		n += len(ss)
	}
	return n
}

// groups maps fingerprint to logits for the given templates. Templates with
// no samples are omitted.
func (a *accumulator) groups(templateIDs []int) map[string][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string][]float64, len(templateIDs))
	for _, id := range templateIDs {
		for _, s := range a.byTemplate[id] {
			out[s.Fingerprint] = append(out[s.Fingerprint], logit.ToLogit(s.ProbTrue))
		}
	}
	return out
}

// samples copies the samples of the given templates ordered by template ID.
func (a *accumulator) samples(templateIDs []int) []evaluator.Sample {
	ids := slices.Clone(templateIDs)
	slices.Sort(ids)
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []evaluator.Sample
	for _, id := range ids {
		out = append(out, a.byTemplate[id]...)
	}
	return out
}
