package orchestrator

// #region imports
import (
	"context"
	"time"

	"github.com/peakyragnar/hx-sub001/internal/aggregate"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/gate"
	"github.com/peakyragnar/hx-sub001/internal/stability"
)

// #endregion

// #region stage-plan

// StagePlanEntry is one level of sampling effort: draw from T unique
// templates, fill K paraphrase slots, R replicates per slot.
type StagePlanEntry struct {
	T int `json:"T" yaml:"t"`
	K int `json:"K" yaml:"k"`
	R int `json:"R" yaml:"r"`
}

// #endregion

// #region actions

// Decision actions. Escalations are rendered by EscalateAction.
const (
	ActionStopPass   = "stop_pass"
	ActionStopLimits = "stop_limits"
	escalatePrefix   = "escalate_to_"
)

// #endregion

// #region stage-stats

// StageStats is what a StageAggregator reports for the samples of a stage.
// Probabilities and the interval are in probability space.
type StageStats struct {
	Prob           float64            `json:"prob_true"`
	PointLogit     float64            `json:"point_logit"`
	CILo           float64            `json:"ci_lo"`
	CIHi           float64            `json:"ci_hi"`
	CIWidth        float64            `json:"ci_width"`
	Stability      float64            `json:"stability"`
	IQR            float64            `json:"template_iqr"`
	ImbalanceRatio float64            `json:"imbalance_ratio"`
	Method         string             `json:"method"`
	TemplateCounts map[string]int     `json:"template_counts,omitempty"`
	TemplateMeans  map[string]float64 `json:"template_means,omitempty"`
}

// StageAggregator turns fingerprint-keyed logits into stage statistics.
type StageAggregator func(groups map[string][]float64, opts aggregate.Options) (StageStats, error)

// FlatEstimate is the flat bootstrap computed alongside the clustered one.
type FlatEstimate struct {
	Prob float64 `json:"prob_true"`
	CILo float64 `json:"ci_lo"`
	CIHi float64 `json:"ci_hi"`
}

// #endregion

// #region snapshot

// StageSnapshot is the frozen result of one stage. It is never mutated after
// it is appended to the run.
type StageSnapshot struct {
	Index            int                `json:"index"`
	T                int                `json:"T"`
	K                int                `json:"K"`
	R                int                `json:"R"`
	Templates        []int              `json:"templates"`
	PlannedOrder     []int              `json:"planned_order"`
	PlannedImbalance float64            `json:"planned_imbalance"`
	Stats            StageStats         `json:"stats"`
	StabilityBand    stability.Band     `json:"stability_band"`
	Flat             *FlatEstimate      `json:"flat,omitempty"`
	Seed             uint64             `json:"seed"`
	SeedSource       string             `json:"seed_source"` // derived | override
	Samples          []evaluator.Sample `json:"samples"`
	Queries          int                `json:"queries"`
	Failures         int                `json:"failures"`
	Gates            gate.GateReport    `json:"gates"`
	Passed           bool               `json:"passed"`
	CreatedAt        time.Time          `json:"created_at"`
}

// #endregion

// #region decision

// Decision is one append-only entry in the run's decision log.
type Decision struct {
	Stage   int             `json:"stage"`
	Action  string          `json:"action"`
	Reason  string          `json:"reason"`
	Gates   gate.GateReport `json:"gates"`
	Warning string          `json:"warning,omitempty"`
}

// #endregion

// #region run-result

// FinalSummary condenses the stage the run stopped on.
type FinalSummary struct {
	Stage          int            `json:"stage"`
	T              int            `json:"T"`
	K              int            `json:"K"`
	R              int            `json:"R"`
	Prob           float64        `json:"prob_true"`
	CILo           float64        `json:"ci_lo"`
	CIHi           float64        `json:"ci_hi"`
	CIWidth        float64        `json:"ci_width"`
	Stability      float64        `json:"stability"`
	StabilityBand  stability.Band `json:"stability_band"`
	ImbalanceRatio float64        `json:"imbalance_ratio"`
	Passed         bool           `json:"passed"`
}

// ControllerMeta records the policy and thresholds a run used.
type ControllerMeta struct {
	Policy    string           `json:"policy"`
	BankSize  int              `json:"bank_size"`
	Plan      []StagePlanEntry `json:"plan"`
	StartK    int              `json:"start_K"`
	StartR    int              `json:"start_R"`
	MaxK      int              `json:"max_K"`
	MaxR      int              `json:"max_R"`
	Gates     gate.GateConfig  `json:"gates"`
	Bootstrap int              `json:"bootstrap"`
	Center    aggregate.Center `json:"center"`
	Trim      float64          `json:"trim"`
	FixedM    int              `json:"fixed_m,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RunResult is the complete record of one evaluation run.
type RunResult struct {
	RunID         string          `json:"run_id"`
	RunKey        string          `json:"run_key"`
	Claim         string          `json:"claim"`
	Model         string          `json:"model"`
	PromptVersion string          `json:"prompt_version"`
	Final         FinalSummary    `json:"final"`
	Stages        []StageSnapshot `json:"stages"`
	DecisionLog   []Decision      `json:"decision_log"`
	Controller    ControllerMeta  `json:"controller"`
}

// Status is the terminal action of the run.
func (r *RunResult) Status() string {
	if len(r.DecisionLog) == 0 {
		return ""
	}
	return r.DecisionLog[len(r.DecisionLog)-1].Action
}

// #endregion

// #region interfaces

// SampleCache persists collected samples so a restarted run for the same
// claim, model and prompt version can reuse them.
type SampleCache interface {
	LoadSamples(ctx context.Context, runKey string) ([]evaluator.Sample, error)
	SaveSample(ctx context.Context, runKey string, s evaluator.Sample) error
}

// DecisionSink receives each decision as it is appended.
type DecisionSink func(runID string, d Decision)

// #endregion
