package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/peakyragnar/hx-sub001/internal/aggregate"
	"github.com/peakyragnar/hx-sub001/internal/eval"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/gate"
	"github.com/peakyragnar/hx-sub001/internal/metrics"
	"github.com/peakyragnar/hx-sub001/internal/sampler"
	"github.com/peakyragnar/hx-sub001/internal/seed"
	"github.com/peakyragnar/hx-sub001/internal/stability"
)

// #endregion

// #region config

// Config parameterizes a Controller.
type Config struct {
	Model         string
	PromptVersion string
	Gates         gate.GateConfig
	Plan          []StagePlanEntry // nil uses DefaultPlan(len(bank), StartR, MaxR)
	StartR        int
	MaxR          int
	Bootstrap     int
	Center        aggregate.Center
	Trim          float64
	FixedM        int
	SeedOverride  *uint64
	Workers       int
	Policy        string
}

// DefaultConfig returns the default policy: gates 0.20/0.70/1.50 (warn 1.25),
// R from 2 to 4, B=5000 with a 20% trimmed center, four concurrent templates.
func DefaultConfig() Config {
	return Config{
		Model:         "gpt-4o-mini",
		PromptVersion: "rpl-g5",
		Gates:         gate.DefaultGateConfig(),
		StartR:        2,
		MaxR:          4,
		Bootstrap:     5000,
		Center:        aggregate.CenterTrimmed,
		Trim:          0.2,
		Workers:       4,
		Policy:        DefaultPolicy,
	}
}

// #endregion

// #region controller-struct

// Controller runs the staged escalation for one claim at a time. It holds no
// per-run state, so one Controller may serve concurrent runs.
type Controller struct {
	cfg        Config
	plan       []StagePlanEntry
	gate       *gate.Gate
	client     evaluator.Client
	bank       []evaluator.Template
	byID       map[int]evaluator.Template
	workers    int
	aggregator StageAggregator
	cache      SampleCache
	sink       DecisionSink
	metrics    *metrics.Metrics
	audit      *eval.EvalHarness
	now        func() time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithAggregator replaces the default clustered aggregator.
func WithAggregator(a StageAggregator) Option {
	return func(c *Controller) { c.aggregator = a }
}

// WithSampleCache enables sample persistence and warm starts.
func WithSampleCache(sc SampleCache) Option {
	return func(c *Controller) { c.cache = sc }
}

// WithDecisionSink registers a callback for each appended decision.
func WithDecisionSink(s DecisionSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithMetrics records Prometheus metrics for every run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// #endregion

// #region constructor

// NewController validates cfg against the bank and returns a ready
// Controller. Every configuration problem is reported as *ConfigError before
// any query is issued.
func NewController(cfg Config, client evaluator.Client, bank []evaluator.Template, opts ...Option) (*Controller, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Reason: "evaluation client is required"}
	}
	if len(bank) == 0 {
		return nil, &ConfigError{Field: "bank", Reason: "template bank is empty"}
	}
	byID := make(map[int]evaluator.Template, len(bank))
	for _, t := range bank {
		if _, dup := byID[t.ID]; dup {
			return nil, &ConfigError{Field: "bank", Reason: fmt.Sprintf("duplicate template id %d", t.ID)}
		}
		byID[t.ID] = t
	}

	g, err := gate.NewGate(cfg.Gates)
	if err != nil {
		var ve *gate.ValidationError
		if errors.As(err, &ve) {
			return nil, &ConfigError{Field: "gates." + ve.Field, Reason: ve.Reason, Err: err}
		}
		return nil, &ConfigError{Field: "gates", Reason: err.Error(), Err: err}
	}
	if err := validateSampling(cfg); err != nil {
		return nil, err
	}

	plan := slices.Clone(cfg.Plan)
	if len(plan) == 0 {
		if cfg.StartR <= 0 || cfg.MaxR < cfg.StartR {
			return nil, &ConfigError{Field: "replicates", Reason: fmt.Sprintf("need 0 < start_R <= max_R, got %d and %d", cfg.StartR, cfg.MaxR)}
		}
		plan = DefaultPlan(len(bank), cfg.StartR, cfg.MaxR)
	}
	if err := validatePlan(plan, len(bank)); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = DefaultPolicy
	}

	c := &Controller{
		cfg:        cfg,
		plan:       plan,
		gate:       g,
		client:     client,
		bank:       slices.Clone(bank),
		byID:       byID,
		workers:    workers,
		aggregator: ClusteredAggregator,
		audit:      eval.NewEvalHarness(eval.DefaultEvalConfig()),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func validateSampling(cfg Config) error {
	switch {
	case cfg.Model == "":
		return &ConfigError{Field: "model", Reason: "model is required"}
	case cfg.Bootstrap <= 0:
		return &ConfigError{Field: "bootstrap", Reason: fmt.Sprintf("must be positive, got %d", cfg.Bootstrap)}
	case cfg.Center != aggregate.CenterMean && cfg.Center != aggregate.CenterTrimmed:
		return &ConfigError{Field: "center", Reason: fmt.Sprintf("unknown center %q", cfg.Center)}
	case math.IsNaN(cfg.Trim) || cfg.Trim < 0 || cfg.Trim >= 0.5:
		return &ConfigError{Field: "trim", Reason: fmt.Sprintf("must be in [0, 0.5), got %v", cfg.Trim)}
	case cfg.FixedM < 0:
		return &ConfigError{Field: "fixed_m", Reason: fmt.Sprintf("must be >= 0, got %d", cfg.FixedM)}
	}
	return nil
}

// Plan returns a copy of the stage plan in effect.
func (c *Controller) Plan() []StagePlanEntry {
	return slices.Clone(c.plan)
}

// #endregion

// #region run

// RunKey identifies a (claim, model, prompt version) triple. Runs sharing a
// key share cached samples.
func RunKey(claim, model, promptVersion string) string {
	return uuid.NewSHA1(runKeySpace, []byte(claim+"|"+model+"|"+promptVersion)).String()
}

var runKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("claimprob/run-key"))

// Run executes the stage plan for claim until a stage passes every gate or
// the plan is exhausted. Sampling exhaustion, aggregation failures, audit
// failures and cancellation abort the run and return no result.
func (c *Controller) Run(ctx context.Context, claim string) (*RunResult, error) {
	if claim == "" {
		return nil, &ConfigError{Field: "claim", Reason: "claim is empty"}
	}

	result := &RunResult{
		RunID:         uuid.NewString(),
		RunKey:        RunKey(claim, c.cfg.Model, c.cfg.PromptVersion),
		Claim:         claim,
		Model:         c.cfg.Model,
		PromptVersion: c.cfg.PromptVersion,
		Controller:    c.meta(),
	}
	rs := c.newRunState(claim, result.RunKey)
	c.warmStart(ctx, rs)

	log.Printf("[ORCH] run start run_id=%s stages=%d templates=%d cached=%d",
		result.RunID, len(c.plan), len(c.bank), rs.acc.total())

	for i, stage := range c.plan {
		snap, err := c.runStage(ctx, rs, i, stage)
		if err != nil {
			log.Printf("[ORCH] run aborted run_id=%s stage=%d: %v", result.RunID, i, err)
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		result.Stages = append(result.Stages, snap)

		d := c.decide(i, snap)
		result.DecisionLog = append(result.DecisionLog, d)
		c.metrics.ObserveDecision(ActionKind(d.Action))
		if c.sink != nil {
			c.sink(result.RunID, d)
		}
		log.Printf("[ORCH] decision stage=%d action=%s reason=%q", i, d.Action, d.Reason)

		if !IsEscalation(d.Action) {
			break
		}
	}

	last := result.Stages[len(result.Stages)-1]
	result.Final = FinalSummary{
		Stage:          last.Index,
		T:              last.T,
		K:              last.K,
		R:              last.R,
		Prob:           last.Stats.Prob,
		CILo:           last.Stats.CILo,
		CIHi:           last.Stats.CIHi,
		CIWidth:        last.Stats.CIWidth,
		Stability:      last.Stats.Stability,
		StabilityBand:  last.StabilityBand,
		ImbalanceRatio: last.Stats.ImbalanceRatio,
		Passed:         last.Passed,
	}
	c.metrics.ObserveRun(len(result.Stages))
	log.Printf("[ORCH] run done run_id=%s status=%s p=%.4f ci=[%.4f, %.4f]",
		result.RunID, result.Status(), result.Final.Prob, result.Final.CILo, result.Final.CIHi)
	return result, nil
}

// #endregion

// #region stage

func (c *Controller) runStage(ctx context.Context, rs *runState, index int, stage StagePlanEntry) (StageSnapshot, error) {
	offset := sampler.RotationOffset(rs.claim, c.cfg.Model, c.cfg.PromptVersion, len(c.bank))
	subset := sampler.SelectSubset(len(c.bank), stage.T, offset)
	slots := sampler.BalancedIndices(len(subset), stage.K, 0)
	_, plannedImbalance := sampler.PlannedCounts(slots, len(subset))

	templates := make([]int, len(subset))
	for i, pos := range subset {
		templates[i] = c.bank[pos].ID
	}
	order := make([]int, len(slots))
	needed := make(map[int]int, len(templates))
	for i, s := range slots {
		id := templates[s]
		order[i] = id
		needed[id] += stage.R
	}
	for _, id := range templates {
		if needed[id] > 0 {
			rs.touched[id] = true
		}
	}

	log.Printf("[ORCH] stage=%d T=%d K=%d R=%d planned_imbalance=%.4f", index, stage.T, stage.K, stage.R, plannedImbalance)

	failuresBefore := rs.budget.Total()
	queries, err := c.collect(ctx, rs, needed, stage.R)
	if err != nil {
		return StageSnapshot{}, err
	}

	ids := rs.touchedIDs()
	groups := rs.acc.groups(ids)
	if len(groups) == 0 {
		return StageSnapshot{}, aggregate.ErrNoTemplates
	}
	fingerprints := make([]string, 0, len(groups))
	for fp := range groups {
		fingerprints = append(fingerprints, fp)
	}

	opts := aggregate.Options{
		Bootstrap: c.cfg.Bootstrap,
		Center:    c.cfg.Center,
		Trim:      c.cfg.Trim,
		FixedM:    c.cfg.FixedM,
	}
	seedSource := "derived"
	if c.cfg.SeedOverride != nil {
		opts.Seed = *c.cfg.SeedOverride
		seedSource = "override"
	} else {
		opts.Seed = seed.Derive(seed.Input{
			Claim:         rs.claim,
			Model:         c.cfg.Model,
			PromptVersion: c.cfg.PromptVersion,
			K:             stage.K,
			R:             stage.R,
			Fingerprints:  fingerprints,
			Center:        string(c.cfg.Center),
			Trim:          c.cfg.Trim,
			Bootstrap:     c.cfg.Bootstrap,
		})
	}

	started := time.Now()
	stats, err := c.aggregator(groups, opts)
	if err != nil {
		return StageSnapshot{}, fmt.Errorf("aggregate: %w", err)
	}
	c.metrics.ObserveAggregation(time.Since(started), stats.CIWidth)

	audit := c.audit.Run(eval.SnapshotStats{
		Prob:           stats.Prob,
		CILo:           stats.CILo,
		CIHi:           stats.CIHi,
		CIWidth:        stats.CIWidth,
		Stability:      stats.Stability,
		ImbalanceRatio: stats.ImbalanceRatio,
		Counts:         stats.TemplateCounts,
	})
	if !audit.Passed {
		return StageSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotAudit, audit.Reason)
	}

	report := c.gate.Evaluate(gate.Metrics{
		CIWidth:        stats.CIWidth,
		Stability:      stats.Stability,
		ImbalanceRatio: stats.ImbalanceRatio,
	})

	snap := StageSnapshot{
		Index:            index,
		T:                stage.T,
		K:                stage.K,
		R:                stage.R,
		Templates:        templates,
		PlannedOrder:     order,
		PlannedImbalance: plannedImbalance,
		Stats:            stats,
		StabilityBand:    stability.DefaultBand(stats.IQR),
		Flat:             flatEstimate(groups, opts),
		Seed:             opts.Seed,
		SeedSource:       seedSource,
		Samples:          rs.acc.samples(ids),
		Queries:          queries,
		Failures:         rs.budget.Total() - failuresBefore,
		Gates:            report,
		Passed:           report.Passed(),
		CreatedAt:        c.now().UTC(),
	}
	log.Printf("[ORCH] stage=%d p=%.4f ci_width=%.4f stability=%.4f imbalance=%.4f queries=%d failures=%d passed=%v",
		index, stats.Prob, stats.CIWidth, stats.Stability, stats.ImbalanceRatio, queries, snap.Failures, snap.Passed)
	return snap, nil
}

// #endregion

// #region decide

func (c *Controller) decide(index int, snap StageSnapshot) Decision {
	d := Decision{Stage: index, Gates: snap.Gates}
	switch {
	case snap.Passed:
		d.Action = ActionStopPass
		d.Reason = "all gates passed"
	case index+1 < len(c.plan):
		d.Action = EscalateAction(c.plan[index+1])
		d.Reason = "gates failed: " + snap.Gates.Summary()
	default:
		d.Action = ActionStopLimits
		d.Reason = "plan exhausted: " + snap.Gates.Summary()
	}
	if snap.Gates.ImbalanceWarning {
		d.Warning = fmt.Sprintf("imbalance %.4f above warn threshold %.4f",
			snap.Stats.ImbalanceRatio, c.gate.Config().ImbalanceWarn)
	}
	return d
}

func (c *Controller) meta() ControllerMeta {
	m := ControllerMeta{
		Policy:    c.cfg.Policy,
		BankSize:  len(c.bank),
		Plan:      slices.Clone(c.plan),
		StartK:    c.plan[0].K,
		StartR:    c.plan[0].R,
		Gates:     c.gate.Config(),
		Bootstrap: c.cfg.Bootstrap,
		Center:    c.cfg.Center,
		Trim:      c.cfg.Trim,
		FixedM:    c.cfg.FixedM,
		Timestamp: c.now().UTC(),
	}
	for _, s := range c.plan {
		m.MaxK = max(m.MaxK, s.K)
		m.MaxR = max(m.MaxR, s.R)
	}
	return m
}

// #endregion
