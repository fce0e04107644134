package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/peakyragnar/hx-sub001/internal/evaluator"
)

func TestLoadFixture_Fields(t *testing.T) {
	f := loadTestFixture(t, "escalate_then_pass.json")
	if f.Claim != "The Eiffel Tower is in Paris." {
		t.Errorf("claim = %q", f.Claim)
	}
	if got := f.Templates[13].Probs; len(got) != 1 || got[0] != 0.9 {
		t.Errorf("template 13 probs = %v", got)
	}
	if len(f.Expected) != 2 || f.Expected[1].Action != "stop_pass" {
		t.Errorf("expected results = %+v", f.Expected)
	}
}

func TestLoadFixture_Errors(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestToControllerConfig(t *testing.T) {
	seed := uint64(42)
	trim := 0.1
	f := &Fixture{
		Model: "m",
		Config: FixtureConfig{
			Bootstrap: 300,
			Center:    "mean",
			Trim:      &trim,
			Seed:      &seed,
			StartR:    1,
			MaxR:      3,
		},
	}
	cfg := f.ToControllerConfig()
	if cfg.Model != "m" || cfg.PromptVersion == "" {
		t.Errorf("identity = %q/%q", cfg.Model, cfg.PromptVersion)
	}
	if cfg.Bootstrap != 300 || cfg.Center != "mean" || cfg.Trim != 0.1 {
		t.Errorf("sampling = %+v", cfg)
	}
	if cfg.SeedOverride == nil || *cfg.SeedOverride != 42 {
		t.Errorf("seed = %v", cfg.SeedOverride)
	}
	if cfg.StartR != 1 || cfg.MaxR != 3 || cfg.Workers != 1 {
		t.Errorf("replicates/workers = %d/%d/%d", cfg.StartR, cfg.MaxR, cfg.Workers)
	}
}

func TestFixtureBank(t *testing.T) {
	f := &Fixture{Config: FixtureConfig{BankSize: 4}}
	if got := len(f.Bank()); got != 4 {
		t.Errorf("bank size = %d, want 4", got)
	}
	f.Config.BankSize = 0
	if got := len(f.Bank()); got != len(evaluator.DefaultBank()) {
		t.Errorf("default bank size = %d", got)
	}
}

func TestScriptedClient(t *testing.T) {
	f := &Fixture{
		DefaultProbs: []float64{0.3},
		Templates:    map[int]FixtureTemplate{1: {Probs: []float64{0.6, 0.7}, Failures: 1}},
	}
	c := NewScriptedClient(f)
	ctx := context.Background()
	tpl := evaluator.Template{ID: 1, Text: "t"}

	if _, err := c.Query(ctx, "claim", tpl, "m"); !errors.Is(err, ErrScriptedFailure) {
		t.Fatalf("first call error = %v, want scripted failure", err)
	}
	want := []float64{0.6, 0.7, 0.6}
	for i, w := range want {
		s, err := c.Query(ctx, "claim", tpl, "m")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if s.ProbTrue != w {
			t.Errorf("call %d prob = %v, want %v", i, s.ProbTrue, w)
		}
		if s.Fingerprint != evaluator.TemplateFingerprint(tpl, "claim") || s.ModelID != "m" {
			t.Errorf("call %d sample = %+v", i, s)
		}
	}
	if c.Calls(1) != 4 {
		t.Errorf("calls = %d, want 4", c.Calls(1))
	}

	s, err := c.Query(ctx, "claim", evaluator.Template{ID: 9}, "m")
	if err != nil || s.ProbTrue != 0.3 {
		t.Errorf("default script = %v, %v", s.ProbTrue, err)
	}

	empty := NewScriptedClient(&Fixture{})
	if _, err := empty.Query(ctx, "claim", tpl, "m"); err == nil {
		t.Error("expected error without any script")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.Query(cancelled, "claim", tpl, "m"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v", err)
	}
}
