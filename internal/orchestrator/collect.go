package orchestrator

// #region imports
import (
	"context"
	"errors"
	"log"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/peakyragnar/hx-sub001/internal/evaluator"
)

// #endregion

// #region run-state

// runState is owned by a single Run call.
type runState struct {
	claim    string
	runKey   string
	acc      *accumulator
	budget   *RetryBudget
	touched  map[int]bool
	expected map[int]string // template ID -> prompt fingerprint
}

func (c *Controller) newRunState(claim, runKey string) *runState {
	expected := make(map[int]string, len(c.bank))
	for _, t := range c.bank {
		expected[t.ID] = evaluator.TemplateFingerprint(t, claim)
	}
	return &runState{
		claim:    claim,
		runKey:   runKey,
		acc:      newAccumulator(),
		budget:   NewRetryBudget(),
		touched:  make(map[int]bool),
		expected: expected,
	}
}

func (rs *runState) touchedIDs() []int {
	ids := make([]int, 0, len(rs.touched))
	for id := range rs.touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// #endregion

// #region warm-start

// warmStart loads previously persisted samples for the run key. Samples for
// templates outside the bank are ignored.
func (c *Controller) warmStart(ctx context.Context, rs *runState) {
	if c.cache == nil {
		return
	}
	cached, err := c.cache.LoadSamples(ctx, rs.runKey)
	if err != nil {
		log.Printf("[ORCH] sample cache load failed run_key=%s: %v", rs.runKey, err)
		return
	}
	reused := 0
	for _, s := range cached {
		if _, ok := rs.expected[s.TemplateID]; !ok || s.Fingerprint == "" {
			continue
		}
		if _, err := evaluator.ValidateProbability(s.ProbTrue); err != nil {
			continue
		}
		rs.acc.add(s)
		reused++
	}
	if reused > 0 {
		log.Printf("[ORCH] warm start run_key=%s reused=%d", rs.runKey, reused)
	}
}

// #endregion

// #region collect

// collect fetches the missing replicates for every template in needed. Work
// is spread over templates with at most c.workers in flight; replicates of one
// template run sequentially so its failure counter is exact. It returns only
// after every template is complete or one has failed.
func (c *Controller) collect(ctx context.Context, rs *runState, needed map[int]int, r int) (int, error) {
	ids := make([]int, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var queries atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, id := range ids {
		if rs.acc.count(id) >= needed[id] {
			continue
		}
		tmpl := c.byID[id]
		want := needed[id]
		g.Go(func() error {
			return c.fillTemplate(gctx, rs, tmpl, want, Limit(r), &queries)
		})
	}
	err := g.Wait()
	return int(queries.Load()), err
}

// fillTemplate queries until the template holds want samples or its
// cumulative failures reach limit.
func (c *Controller) fillTemplate(ctx context.Context, rs *runState, t evaluator.Template, want, limit int, queries *atomic.Int64) error {
	for rs.acc.count(t.ID) < want {
		if err := ctx.Err(); err != nil {
			return err
		}
		queries.Add(1)
		s, err := c.client.Query(ctx, rs.claim, t, c.cfg.Model)
		if err == nil {
			s, err = c.checkSample(rs, t, s)
		}
		c.metrics.ObserveQuery(err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			failures, retry := rs.budget.RecordFailure(t.ID, limit)
			if !retry {
				c.metrics.ObserveExhaustion()
				log.Printf("[ORCH] exhausted template=%d failures=%d limit=%d: %v", t.ID, failures, limit, err)
				return &ExhaustionError{
					TemplateID:  t.ID,
					Fingerprint: rs.expected[t.ID],
					Failures:    failures,
					Limit:       limit,
					Collected:   rs.acc.count(t.ID),
					LastErr:     err,
				}
			}
			c.metrics.ObserveRetry()
			log.Printf("[ORCH] query failed template=%d failures=%d/%d: %v", t.ID, failures, limit, err)
			continue
		}

		rs.acc.add(s)
		if c.cache != nil {
			if err := c.cache.SaveSample(ctx, rs.runKey, s); err != nil {
				log.Printf("[ORCH] sample cache save failed template=%d: %v", t.ID, err)
			}
		}
	}
	return nil
}

// checkSample enforces the client contract on a successful reply.
func (c *Controller) checkSample(rs *runState, t evaluator.Template, s evaluator.Sample) (evaluator.Sample, error) {
	if _, err := evaluator.ValidateProbability(s.ProbTrue); err != nil {
		return s, err
	}
	s.TemplateID = t.ID
	if s.Fingerprint == "" {
		s.Fingerprint = rs.expected[t.ID]
	}
	if s.ModelID == "" {
		s.ModelID = c.cfg.Model
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = c.now().UTC()
	}
	return s, nil
}

// #endregion
