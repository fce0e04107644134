package replay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

func loadTestFixture(t *testing.T, name string) *Fixture {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("LoadFixture(%s): %v", name, err)
	}
	return f
}

// 1. Every checked-in fixture replays with no divergence.
func TestReplay_Fixtures(t *testing.T) {
	for _, name := range []string{"immediate_pass.json", "escalate_then_pass.json", "stop_limits.json"} {
		t.Run(name, func(t *testing.T) {
			f := loadTestFixture(t, name)
			res, err := Replay(context.Background(), f)
			if err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if res.Diverged != 0 {
				t.Errorf("diverged = %d, comparisons = %+v", res.Diverged, res.Comparisons)
			}
			if res.Matches != len(f.Expected) {
				t.Errorf("matches = %d, want %d", res.Matches, len(f.Expected))
			}
		})
	}
}

// 2. Scripted failures are retried and do not change the decision.
func TestReplay_ScriptedFailuresRetried(t *testing.T) {
	f := loadTestFixture(t, "immediate_pass.json")
	res, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got := res.Run.Stages[0].Failures; got != 3 {
		t.Errorf("stage failures = %d, want 3", got)
	}
	if got := res.Run.Stages[0].Queries; got != 19 {
		t.Errorf("stage queries = %d, want 19", got)
	}
}

// 3. A wrong expectation shows up as divergence, not as an error.
func TestReplay_DivergenceReported(t *testing.T) {
	f := loadTestFixture(t, "immediate_pass.json")
	f.Expected = []FixtureExpectedResult{{Stage: 0, Action: "stop_limits"}}
	res, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Diverged != 1 || res.Comparisons[0].Match {
		t.Errorf("comparisons = %+v", res.Comparisons)
	}
}

// 4. Too many scripted failures exhaust the template and fail the replay.
func TestReplay_ExhaustionPropagates(t *testing.T) {
	f := loadTestFixture(t, "immediate_pass.json")
	f.Templates = map[int]FixtureTemplate{5: {Probs: []float64{0.55}, Failures: 100}}
	_, err := Replay(context.Background(), f)
	var ex *orchestrator.ExhaustionError
	if !errors.As(err, &ex) {
		t.Fatalf("error = %v, want *ExhaustionError", err)
	}
	if ex.TemplateID != 5 {
		t.Errorf("exhausted template = %d, want 5", ex.TemplateID)
	}
	if !errors.Is(err, ErrScriptedFailure) {
		t.Error("expected the last scripted failure to be wrapped")
	}
}

// 5. A persisted run converted with FromRun replays to the same decisions.
func TestReplay_FromRunRoundTrip(t *testing.T) {
	original := loadTestFixture(t, "escalate_then_pass.json")
	first, err := Replay(context.Background(), original)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	again := FromRun(first.Run)
	if len(again.Expected) != 2 {
		t.Fatalf("expected 2 decisions from run, got %d", len(again.Expected))
	}
	res, err := Replay(context.Background(), again)
	if err != nil {
		t.Fatalf("Replay(FromRun): %v", err)
	}
	if res.Diverged != 0 {
		t.Errorf("comparisons = %+v", res.Comparisons)
	}
	if res.Run.Final.Prob != first.Run.Final.Prob {
		t.Errorf("final prob = %v, want %v", res.Run.Final.Prob, first.Run.Final.Prob)
	}
}

// A run against a reduced bank records its size so the replay selects the
// same templates.
func TestReplay_FromRunSmallBank(t *testing.T) {
	original := loadTestFixture(t, "immediate_pass.json")
	original.Config.BankSize = 8
	first, err := Replay(context.Background(), original)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if first.Run.Controller.BankSize != 8 {
		t.Fatalf("recorded bank size = %d, want 8", first.Run.Controller.BankSize)
	}

	again := FromRun(first.Run)
	if again.Config.BankSize != 8 {
		t.Fatalf("fixture bank size = %d, want 8", again.Config.BankSize)
	}
	res, err := Replay(context.Background(), again)
	if err != nil {
		t.Fatalf("Replay(FromRun): %v", err)
	}
	if res.Diverged != 0 {
		t.Errorf("comparisons = %+v", res.Comparisons)
	}
}

// 6. Compare pads the shorter side and accepts a bare "escalate".
func TestCompare(t *testing.T) {
	expected := []FixtureExpectedResult{
		{Stage: 0, Action: "escalate"},
		{Stage: 1, Action: "stop_pass"},
		{Stage: 2, Action: "stop_limits"},
	}
	replayed := []orchestrator.Decision{
		{Stage: 0, Action: "escalate_to_T16_K16_R2"},
		{Stage: 1, Action: "stop_pass"},
	}
	got := Compare(expected, replayed)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !got[0].Match || !got[1].Match {
		t.Errorf("first two should match: %+v", got[:2])
	}
	if got[2].Match || got[2].Replayed != "-" || got[2].Stage != 2 {
		t.Errorf("padded row = %+v", got[2])
	}
}

func TestActionsMatch(t *testing.T) {
	tests := []struct {
		expected, replayed string
		want               bool
	}{
		{"stop_pass", "stop_pass", true},
		{"escalate", "escalate_to_T16_K16_R4", true},
		{"escalate", "stop_pass", false},
		{"escalate_to_T16_K16_R2", "escalate_to_T16_K16_R4", false},
	}
	for _, tt := range tests {
		if got := ActionsMatch(tt.expected, tt.replayed); got != tt.want {
			t.Errorf("ActionsMatch(%q, %q) = %v, want %v", tt.expected, tt.replayed, got, tt.want)
		}
	}
}
