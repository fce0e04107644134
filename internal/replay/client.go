package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/peakyragnar/hx-sub001/internal/evaluator"
)

// ErrScriptedFailure is returned for each scripted failure of a template.
var ErrScriptedFailure = errors.New("scripted failure")

// ScriptedClient answers queries from a fixture instead of a model. Each
// template first fails Failures times, then cycles through its Probs.
// Templates without a script use the fixture's DefaultProbs.
type ScriptedClient struct {
	mu       sync.Mutex
	scripts  map[int]FixtureTemplate
	defaults []float64
	calls    map[int]int
}

// NewScriptedClient builds a client from f's template scripts.
func NewScriptedClient(f *Fixture) *ScriptedClient {
	return &ScriptedClient{
		scripts:  f.Templates,
		defaults: f.DefaultProbs,
		calls:    make(map[int]int),
	}
}

// Query implements evaluator.Client.
func (c *ScriptedClient) Query(ctx context.Context, claim string, t evaluator.Template, model string) (evaluator.Sample, error) {
	if err := ctx.Err(); err != nil {
		return evaluator.Sample{}, err
	}

	c.mu.Lock()
	call := c.calls[t.ID]
	c.calls[t.ID] = call + 1
	c.mu.Unlock()

	script, ok := c.scripts[t.ID]
	probs := script.Probs
	if !ok || len(probs) == 0 {
		probs = c.defaults
	}
	if call < script.Failures {
		return evaluator.Sample{}, fmt.Errorf("template %d call %d: %w", t.ID, call, ErrScriptedFailure)
	}
	if len(probs) == 0 {
		return evaluator.Sample{}, fmt.Errorf("template %d: no scripted probabilities", t.ID)
	}

	return evaluator.Sample{
		TemplateID:  t.ID,
		Fingerprint: evaluator.TemplateFingerprint(t, claim),
		ProbTrue:    probs[(call-script.Failures)%len(probs)],
		ModelID:     model,
	}, nil
}

// Calls returns how many queries template id has received.
func (c *ScriptedClient) Calls(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}
