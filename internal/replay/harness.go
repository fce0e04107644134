package replay

import (
	"context"
	"fmt"
	"log"

	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

// #region types

// Comparison pairs the expected and replayed action of one stage. A missing
// side is reported as "-".
type Comparison struct {
	Stage    int
	Expected string
	Replayed string
	Match    bool
}

// Result is the outcome of replaying one fixture.
type Result struct {
	Run         *orchestrator.RunResult
	Comparisons []Comparison
	Matches     int
	Diverged    int
}

// #endregion types

// #region replay

// Replay runs the controller against a scripted client built from f and
// compares its decisions with f's expected results. A controller error is
// returned as-is; divergence is reported in the Result.
func Replay(ctx context.Context, f *Fixture, opts ...orchestrator.Option) (*Result, error) {
	ctrl, err := orchestrator.NewController(f.ToControllerConfig(), NewScriptedClient(f), f.Bank(), opts...)
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}
	run, err := ctrl.Run(ctx, f.Claim)
	if err != nil {
		return nil, fmt.Errorf("replay %q: %w", f.Description, err)
	}

	res := &Result{Run: run, Comparisons: Compare(f.Expected, run.DecisionLog)}
	for _, c := range res.Comparisons {
		if c.Match {
			res.Matches++
		} else {
			res.Diverged++
		}
	}
	log.Printf("[REPLAY] run_id=%s stages=%d match=%d diverge=%d", run.RunID, len(run.Stages), res.Matches, res.Diverged)
	return res, nil
}

// #endregion replay

// #region compare

// Compare lines up expected and replayed decisions by position.
func Compare(expected []FixtureExpectedResult, replayed []orchestrator.Decision) []Comparison {
	n := max(len(expected), len(replayed))
	out := make([]Comparison, n)
	for i := range n {
		c := Comparison{Stage: i, Expected: "-", Replayed: "-"}
		if i < len(expected) {
			c.Stage = expected[i].Stage
			c.Expected = expected[i].Action
		}
		if i < len(replayed) {
			c.Stage = replayed[i].Stage
			c.Replayed = replayed[i].Action
		}
		c.Match = i < len(expected) && i < len(replayed) && ActionsMatch(c.Expected, c.Replayed)
		out[i] = c
	}
	return out
}

// ActionsMatch compares an expected action with a replayed one. An expected
// "escalate" matches any escalation regardless of its target stage.
func ActionsMatch(expected, replayed string) bool {
	if expected == replayed {
		return true
	}
	return expected == "escalate" && orchestrator.IsEscalation(replayed)
}

// #endregion compare
