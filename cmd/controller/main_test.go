package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peakyragnar/hx-sub001/internal/config"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

func TestBuildClient(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKey = ""
	if _, _, err := buildClient(cfg); err == nil {
		t.Error("expected error for openai without api key")
	}

	cfg.OpenAI.APIKey = "sk-test"
	c, closer, err := buildClient(cfg)
	if err != nil {
		t.Fatalf("openai client: %v", err)
	}
	if _, ok := c.(*evaluator.OpenAIClient); !ok || closer != nil {
		t.Errorf("client = %T closer=%v", c, closer != nil)
	}

	cfg.Sampling.QPS = 5
	c, _, err = buildClient(cfg)
	if err != nil {
		t.Fatalf("rate limited client: %v", err)
	}
	if _, ok := c.(*evaluator.RateLimitedClient); !ok {
		t.Errorf("client = %T, want *RateLimitedClient", c)
	}

	cfg.Provider = "grpc"
	cfg.Sampling.QPS = 0
	c, closer, err = buildClient(cfg)
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	if _, ok := c.(*evaluator.GRPCClient); !ok || closer == nil {
		t.Errorf("client = %T closer=%v", c, closer != nil)
	}
	closer()

	cfg.Provider = "smoke-signals"
	_, _, err = buildClient(cfg)
	var ce *orchestrator.ConfigError
	if !errors.As(err, &ce) || ce.Field != "provider" {
		t.Errorf("error = %v, want provider ConfigError", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&orchestrator.ConfigError{Field: "claim"}, 2},
		{fmt.Errorf("stage 1: %w", &orchestrator.ExhaustionError{TemplateID: 1}), 3},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPrintRun(t *testing.T) {
	run := &orchestrator.RunResult{
		RunID: "run-1",
		Claim: "c",
		Final: orchestrator.FinalSummary{Prob: 0.62, CILo: 0.55, CIHi: 0.7, CIWidth: 0.15, Stability: 0.9, StabilityBand: "high"},
		Stages: []orchestrator.StageSnapshot{
			{Index: 0, T: 8, K: 8, R: 2},
			{Index: 1, T: 16, K: 16, R: 2},
		},
		DecisionLog: []orchestrator.Decision{
			{Stage: 0, Action: "escalate_to_T16_K16_R2"},
			{Stage: 1, Action: "stop_pass", Warning: "imbalance 1.3000 above warn threshold 1.2500"},
		},
	}
	var buf bytes.Buffer
	printRun(&buf, run)
	out := buf.String()
	for _, want := range []string{"Status:   stop_pass", "0.6200", "16/16/2", "escalate_to_T16_K16_R2", "warning (stage 1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimateCmd_ConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("sampling: {center: median}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	root := newRootCmd()
	root.SetArgs([]string{"estimate", "--config", path, "some claim"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	if exitCode(err) != 2 {
		t.Errorf("error = %v, want config error", err)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"estimate", "serve", "evaluator-proxy"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not registered: %v", name, err)
		}
	}
}
