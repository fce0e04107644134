package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/peakyragnar/hx-sub001/internal/aggregate"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/gate"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description   string                  `json:"description"`
	Claim         string                  `json:"claim"`
	Model         string                  `json:"model"`
	PromptVersion string                  `json:"prompt_version"`
	Config        FixtureConfig           `json:"config"`
	DefaultProbs  []float64               `json:"default_probs"`
	Templates     map[int]FixtureTemplate `json:"templates"`
	Expected      []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig holds the controller settings for a replay run. Zero values
// fall back to the controller defaults.
type FixtureConfig struct {
	Gates     *gate.GateConfig              `json:"gates,omitempty"`
	Plan      []orchestrator.StagePlanEntry `json:"plan,omitempty"`
	StartR    int                           `json:"start_r,omitempty"`
	MaxR      int                           `json:"max_r,omitempty"`
	BankSize  int                           `json:"bank_size,omitempty"`
	Bootstrap int                           `json:"bootstrap,omitempty"`
	Center    string                        `json:"center,omitempty"`
	Trim      *float64                      `json:"trim,omitempty"`
	FixedM    int                           `json:"fixed_m,omitempty"`
	Seed      *uint64                       `json:"seed,omitempty"`
}

// FixtureTemplate scripts one template: Failures errors first, then Probs
// in order, cycling.
type FixtureTemplate struct {
	Probs    []float64 `json:"probs"`
	Failures int       `json:"failures,omitempty"`
}

// FixtureExpectedResult is the decision expected at one stage.
type FixtureExpectedResult struct {
	Stage  int    `json:"stage"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToControllerConfig converts the fixture settings to an orchestrator.Config.
func (f *Fixture) ToControllerConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if f.Model != "" {
		cfg.Model = f.Model
	}
	if f.PromptVersion != "" {
		cfg.PromptVersion = f.PromptVersion
	}
	fc := f.Config
	if fc.Gates != nil {
		cfg.Gates = *fc.Gates
	}
	if len(fc.Plan) > 0 {
		cfg.Plan = fc.Plan
		cfg.Policy = "fixture"
	}
	if fc.StartR > 0 {
		cfg.StartR = fc.StartR
	}
	if fc.MaxR > 0 {
		cfg.MaxR = fc.MaxR
	}
	if fc.Bootstrap > 0 {
		cfg.Bootstrap = fc.Bootstrap
	}
	if fc.Center != "" {
		cfg.Center = aggregate.Center(fc.Center)
	}
	if fc.Trim != nil {
		cfg.Trim = *fc.Trim
	}
	cfg.FixedM = fc.FixedM
	cfg.SeedOverride = fc.Seed
	// Scripted clients are deterministic per template; one worker keeps
	// failure logs in order.
	cfg.Workers = 1
	return cfg
}

// Bank returns the template bank the fixture runs against.
func (f *Fixture) Bank() []evaluator.Template {
	bank := evaluator.DefaultBank()
	if n := f.Config.BankSize; n > 0 && n < len(bank) {
		bank = bank[:n]
	}
	return bank
}

// #endregion fixture-loader

// #region from-run

// FromRun builds a fixture that replays a persisted run: each template is
// scripted with the probabilities it returned, in collection order, and the
// run's decisions become the expected results.
func FromRun(r *orchestrator.RunResult) *Fixture {
	gates := r.Controller.Gates
	trim := r.Controller.Trim
	f := &Fixture{
		Description:   fmt.Sprintf("replay of run %s", r.RunID),
		Claim:         r.Claim,
		Model:         r.Model,
		PromptVersion: r.PromptVersion,
		Config: FixtureConfig{
			Gates:     &gates,
			Plan:      r.Controller.Plan,
			BankSize:  r.Controller.BankSize,
			Bootstrap: r.Controller.Bootstrap,
			Center:    string(r.Controller.Center),
			Trim:      &trim,
			FixedM:    r.Controller.FixedM,
		},
		Templates: make(map[int]FixtureTemplate),
	}
	if len(r.Stages) > 0 {
		last := r.Stages[len(r.Stages)-1]
		if last.SeedSource == "override" {
			s := last.Seed
			f.Config.Seed = &s
		}
		for _, s := range last.Samples {
			t := f.Templates[s.TemplateID]
			t.Probs = append(t.Probs, s.ProbTrue)
			f.Templates[s.TemplateID] = t
		}
	}
	for _, d := range r.DecisionLog {
		f.Expected = append(f.Expected, FixtureExpectedResult{Stage: d.Stage, Action: d.Action})
	}
	return f
}

// #endregion from-run
