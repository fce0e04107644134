package config

// #region imports
import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/peakyragnar/hx-sub001/internal/aggregate"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/gate"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

// #endregion

// #region types

// Config is the full runtime configuration of the controller binaries.
type Config struct {
	Model         string          `yaml:"model" validate:"required"`
	PromptVersion string          `yaml:"prompt_version" validate:"required"`
	Provider      string          `yaml:"provider" validate:"oneof=openai grpc"`
	OpenAI        OpenAIConfig    `yaml:"openai"`
	EvaluatorAddr string          `yaml:"evaluator_addr"`
	Gates         gate.GateConfig `yaml:"gates"`
	Sampling      SamplingConfig  `yaml:"sampling"`
	DBPath        string          `yaml:"db_path" validate:"required"`
	HTTPAddr      string          `yaml:"http_addr"`
	GRPCAddr      string          `yaml:"grpc_addr"`
	Seed          *uint64         `yaml:"seed"`
}

// OpenAIConfig configures the chat-completions evaluation backend. The API
// key is only read from the environment.
type OpenAIConfig struct {
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// SamplingConfig controls the stage plan and the bootstrap.
type SamplingConfig struct {
	StartR    int                           `yaml:"start_r" validate:"gte=1"`
	MaxR      int                           `yaml:"max_r" validate:"gtefield=StartR"`
	BankSize  int                           `yaml:"bank_size" validate:"gte=1"`
	Plan      []orchestrator.StagePlanEntry `yaml:"plan"`
	Bootstrap int                           `yaml:"bootstrap" validate:"gte=1"`
	Center    string                        `yaml:"center" validate:"oneof=mean trimmed"`
	Trim      float64                       `yaml:"trim" validate:"gte=0,lt=0.5"`
	FixedM    int                           `yaml:"fixed_m" validate:"gte=0"`
	Workers   int                           `yaml:"workers" validate:"gte=1"`
	QPS       float64                       `yaml:"qps" validate:"gte=0"`
	Burst     int                           `yaml:"burst" validate:"gte=0"`
}

// #endregion

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	oc := orchestrator.DefaultConfig()
	return Config{
		Model:         oc.Model,
		PromptVersion: oc.PromptVersion,
		Provider:      "openai",
		OpenAI:        OpenAIConfig{Temperature: 0.2},
		EvaluatorAddr: "localhost:50051",
		Gates:         gate.DefaultGateConfig(),
		Sampling: SamplingConfig{
			StartR:    oc.StartR,
			MaxR:      oc.MaxR,
			BankSize:  len(evaluator.DefaultBank()),
			Bootstrap: oc.Bootstrap,
			Center:    string(oc.Center),
			Trim:      oc.Trim,
			Workers:   oc.Workers,
			Burst:     1,
		},
		DBPath:   "claimprob.db",
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
	}
}

// #endregion

// #region load

// Load layers defaults, the YAML file at path (skipped when empty) and
// CLAIMPROB_* environment variables, then validates the result.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion

// #region env

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("CLAIMPROB_MODEL", &cfg.Model)
	str("CLAIMPROB_PROMPT_VERSION", &cfg.PromptVersion)
	str("CLAIMPROB_PROVIDER", &cfg.Provider)
	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("CLAIMPROB_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("CLAIMPROB_OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("CLAIMPROB_EVALUATOR_ADDR", &cfg.EvaluatorAddr)
	str("CLAIMPROB_DB", &cfg.DBPath)
	str("CLAIMPROB_HTTP_ADDR", &cfg.HTTPAddr)
	str("CLAIMPROB_GRPC_ADDR", &cfg.GRPCAddr)
	str("CLAIMPROB_CENTER", &cfg.Sampling.Center)

	ints := []struct {
		key string
		dst *int
	}{
		{"CLAIMPROB_START_R", &cfg.Sampling.StartR},
		{"CLAIMPROB_MAX_R", &cfg.Sampling.MaxR},
		{"CLAIMPROB_BANK_SIZE", &cfg.Sampling.BankSize},
		{"CLAIMPROB_BOOTSTRAP", &cfg.Sampling.Bootstrap},
		{"CLAIMPROB_FIXED_M", &cfg.Sampling.FixedM},
		{"CLAIMPROB_WORKERS", &cfg.Sampling.Workers},
	}
	for _, e := range ints {
		if v := getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return envError(e.key, v, err)
			}
			*e.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"CLAIMPROB_TRIM", &cfg.Sampling.Trim},
		{"CLAIMPROB_QPS", &cfg.Sampling.QPS},
		{"CLAIMPROB_CI_WIDTH_MAX", &cfg.Gates.CIWidthMax},
		{"CLAIMPROB_STABILITY_MIN", &cfg.Gates.StabilityMin},
		{"CLAIMPROB_IMBALANCE_MAX", &cfg.Gates.ImbalanceMax},
		{"CLAIMPROB_IMBALANCE_WARN", &cfg.Gates.ImbalanceWarn},
	}
	for _, e := range floats {
		if v := getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return envError(e.key, v, err)
			}
			*e.dst = f
		}
	}

	// The operator seed wins over anything in the file.
	if v := getenv("CLAIMPROB_SEED"); v != "" {
		s, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return envError("CLAIMPROB_SEED", v, err)
		}
		cfg.Seed = &s
	}
	return nil
}

func envError(key, value string, err error) error {
	return &orchestrator.ConfigError{Field: key, Reason: fmt.Sprintf("cannot parse %q", value), Err: err}
}

// #endregion

// #region validate

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports the first invalid field as *orchestrator.ConfigError.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return &orchestrator.ConfigError{
				Field:  field,
				Reason: fmt.Sprintf("fails %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value()),
				Err:    err,
			}
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if err := c.Gates.Validate(); err != nil {
		var ve *gate.ValidationError
		if errors.As(err, &ve) {
			return &orchestrator.ConfigError{Field: "gates." + ve.Field, Reason: ve.Reason, Err: err}
		}
		return &orchestrator.ConfigError{Field: "gates", Reason: err.Error(), Err: err}
	}
	if bank := len(evaluator.DefaultBank()); c.Sampling.BankSize > bank {
		return &orchestrator.ConfigError{
			Field:  "sampling.bank_size",
			Reason: fmt.Sprintf("at most %d templates available, got %d", bank, c.Sampling.BankSize),
		}
	}
	if c.Provider == "grpc" && c.EvaluatorAddr == "" {
		return &orchestrator.ConfigError{Field: "evaluator_addr", Reason: "required for the grpc provider"}
	}
	return nil
}

// #endregion

// #region adapters

// Bank returns the first Sampling.BankSize templates of the default bank.
func (c Config) Bank() []evaluator.Template {
	return evaluator.DefaultBank()[:c.Sampling.BankSize]
}

// Controller maps c onto an orchestrator.Config.
func (c Config) Controller() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.Model = c.Model
	oc.PromptVersion = c.PromptVersion
	oc.Gates = c.Gates
	oc.Plan = c.Sampling.Plan
	oc.StartR = c.Sampling.StartR
	oc.MaxR = c.Sampling.MaxR
	oc.Bootstrap = c.Sampling.Bootstrap
	oc.Center = aggregate.Center(c.Sampling.Center)
	oc.Trim = c.Sampling.Trim
	oc.FixedM = c.Sampling.FixedM
	oc.Workers = c.Sampling.Workers
	oc.SeedOverride = c.Seed
	if len(c.Sampling.Plan) > 0 {
		oc.Policy = "custom"
	}
	return oc
}

// #endregion
