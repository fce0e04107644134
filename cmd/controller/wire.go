package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/peakyragnar/hx-sub001/internal/config"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/logging"
	"github.com/peakyragnar/hx-sub001/internal/metrics"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
	"github.com/peakyragnar/hx-sub001/internal/state"
)

// #region app
// app bundles everything a subcommand needs. close releases the store and
// the evaluator connection.
type app struct {
	cfg      config.Config
	store    *state.Store
	registry *prometheus.Registry
	ctrl     *orchestrator.Controller
	closers  []func() error
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	client, closeClient, err := buildClient(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if closeClient != nil {
		a.closers = append(a.closers, closeClient)
	}

	ctrl, err := orchestrator.NewController(cfg.Controller(), client, cfg.Bank(),
		orchestrator.WithSampleCache(store),
		orchestrator.WithDecisionSink(logging.Sink(store.DB())),
		orchestrator.WithMetrics(metrics.New(a.registry)),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.ctrl = ctrl

	log.Printf("[MAIN] ready model=%s prompt_version=%s provider=%s db=%s bank=%d",
		cfg.Model, cfg.PromptVersion, cfg.Provider, cfg.DBPath, cfg.Sampling.BankSize)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[MAIN] close: %v", err)
		}
	}
	a.closers = nil
}

// #endregion app

// #region client
// buildClient picks the evaluation backend for cfg.Provider and applies the
// configured rate limit. The returned close func may be nil.
func buildClient(cfg config.Config) (evaluator.Client, func() error, error) {
	var (
		client evaluator.Client
		closer func() error
	)
	switch cfg.Provider {
	case "openai":
		c, err := evaluator.NewOpenAIClient(evaluator.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Temperature: cfg.OpenAI.Temperature,
		})
		if err != nil {
			return nil, nil, err
		}
		client = c
	case "grpc":
		c, err := evaluator.NewGRPCClient(cfg.EvaluatorAddr)
		if err != nil {
			return nil, nil, err
		}
		client, closer = c, c.Close
	default:
		return nil, nil, &orchestrator.ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}

	if cfg.Sampling.QPS > 0 {
		client = evaluator.RateLimited(client, cfg.Sampling.QPS, cfg.Sampling.Burst)
	}
	return client, closer, nil
}

// #endregion client

// #region exit-codes
// exitCode maps an error to the process exit status: 2 for configuration
// errors, 3 when a template exhausted its failure budget, 1 otherwise.
func exitCode(err error) int {
	var ce *orchestrator.ConfigError
	var ex *orchestrator.ExhaustionError
	switch {
	case errors.As(err, &ce):
		return 2
	case errors.As(err, &ex):
		return 3
	default:
		return 1
	}
}

// #endregion exit-codes
