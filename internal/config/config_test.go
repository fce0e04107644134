package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claimprob.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Bank()) != 16 {
		t.Errorf("bank size = %d, want 16", len(cfg.Bank()))
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
model: gpt-4.1-mini
prompt_version: rpl-g6
gates:
  ci_width_max: 0.15
  stability_min: 0.8
  imbalance_max: 1.5
  imbalance_warn: 1.25
sampling:
  start_r: 1
  max_r: 3
  bank_size: 10
  bootstrap: 2000
  center: mean
  trim: 0.1
  workers: 2
  plan:
    - {t: 5, k: 5, r: 1}
    - {t: 10, k: 10, r: 3}
seed: 7
`)
	cfg, err := load(path, envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gpt-4.1-mini" || cfg.PromptVersion != "rpl-g6" {
		t.Errorf("identity = %s/%s", cfg.Model, cfg.PromptVersion)
	}
	if cfg.Gates.CIWidthMax != 0.15 || cfg.Gates.StabilityMin != 0.8 {
		t.Errorf("gates = %+v", cfg.Gates)
	}
	if cfg.Sampling.BankSize != 10 || len(cfg.Bank()) != 10 {
		t.Errorf("bank size = %d", cfg.Sampling.BankSize)
	}
	if cfg.Seed == nil || *cfg.Seed != 7 {
		t.Errorf("seed = %v", cfg.Seed)
	}
	// Untouched fields keep defaults.
	if cfg.DBPath != "claimprob.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}

	oc := cfg.Controller()
	if len(oc.Plan) != 2 || oc.Plan[1] != (orchestrator.StagePlanEntry{T: 10, K: 10, R: 3}) {
		t.Errorf("plan = %+v", oc.Plan)
	}
	if oc.Policy != "custom" || oc.Center != "mean" || oc.SeedOverride == nil {
		t.Errorf("controller config = %+v", oc)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeYAML(t, "model: from-file\nseed: 7\n")
	cfg, err := load(path, envMap(map[string]string{
		"CLAIMPROB_MODEL":        "from-env",
		"CLAIMPROB_SEED":         "99",
		"CLAIMPROB_START_R":      "3",
		"CLAIMPROB_MAX_R":        "5",
		"CLAIMPROB_CI_WIDTH_MAX": "0.1",
		"OPENAI_API_KEY":         "sk-test",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "from-env" {
		t.Errorf("model = %q", cfg.Model)
	}
	if *cfg.Seed != 99 {
		t.Errorf("seed = %d, want env value 99", *cfg.Seed)
	}
	if cfg.Sampling.StartR != 3 || cfg.Sampling.MaxR != 5 {
		t.Errorf("replicates = %d..%d", cfg.Sampling.StartR, cfg.Sampling.MaxR)
	}
	if cfg.Gates.CIWidthMax != 0.1 {
		t.Errorf("ci width max = %v", cfg.Gates.CIWidthMax)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("api key not read from env")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		env   map[string]string
		field string
	}{
		{"bad seed", "", map[string]string{"CLAIMPROB_SEED": "-1"}, "CLAIMPROB_SEED"},
		{"bad int", "", map[string]string{"CLAIMPROB_WORKERS": "many"}, "CLAIMPROB_WORKERS"},
		{"max below start", "sampling: {start_r: 4, max_r: 2}\n", nil, "sampling.max_r"},
		{"bad provider", "provider: carrier-pigeon\n", nil, "provider"},
		{"bad center", "sampling: {center: median}\n", nil, "sampling.center"},
		{"trim too large", "sampling: {trim: 0.5}\n", nil, "sampling.trim"},
		{"zero width gate", "gates: {ci_width_max: 0, stability_min: 0.7, imbalance_max: 1.5, imbalance_warn: 1.25}\n", nil, "gates.ci_width_max"},
		{"bank too large", "sampling: {bank_size: 17}\n", nil, "sampling.bank_size"},
		{"grpc without addr", "provider: grpc\nevaluator_addr: \"\"\n", nil, "evaluator_addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.yaml != "" {
				path = writeYAML(t, tt.yaml)
			}
			_, err := load(path, envMap(tt.env))
			var ce *orchestrator.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeYAML(t, "model: [unterminated\n")
	if _, err := load(path, envMap(nil)); err == nil {
		t.Fatal("expected parse error")
	}
}
