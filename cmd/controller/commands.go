package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/peakyragnar/hx-sub001/internal/config"
	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
	"github.com/peakyragnar/hx-sub001/internal/server"
)

// #region estimate
func newEstimateCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "estimate <claim>",
		Short: "Run one estimation and store the result",
		Example: `  controller estimate "The Eiffel Tower is in Paris."
  controller estimate --json -c claimprob.yaml "Water boils at 100C at sea level."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			run, err := a.ctrl.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := a.store.SaveRun(ctx, run); err != nil {
				return fmt.Errorf("save run: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run record as JSON")
	return cmd
}

// printRun writes a short human-readable report of run.
func printRun(w io.Writer, run *orchestrator.RunResult) {
	f := run.Final
	fmt.Fprintf(w, "Claim:    %s\n", run.Claim)
	fmt.Fprintf(w, "Run:      %s\n", run.RunID)
	fmt.Fprintf(w, "Status:   %s\n", run.Status())
	fmt.Fprintf(w, "P(true):  %.4f  CI95 [%.4f, %.4f]  width %.4f\n", f.Prob, f.CILo, f.CIHi, f.CIWidth)
	fmt.Fprintf(w, "Stability %.4f (%s)  imbalance %.4f\n\n", f.Stability, f.StabilityBand, f.ImbalanceRatio)

	fmt.Fprintf(w, "%-6s| %-12s| %-8s| %-8s| %s\n", "Stage", "T/K/R", "Width", "Stab", "Action")
	fmt.Fprintf(w, "%-6s+%-13s+%-9s+%-9s+%s\n", "------", "-------------", "---------", "---------", "----------------------")
	for i, s := range run.Stages {
		action := ""
		if i < len(run.DecisionLog) {
			action = run.DecisionLog[i].Action
		}
		fmt.Fprintf(w, "%-6d| %-12s| %-8.4f| %-8.4f| %s\n",
			s.Index, fmt.Sprintf("%d/%d/%d", s.T, s.K, s.R), s.Stats.CIWidth, s.Stats.Stability, action)
	}
	for _, d := range run.DecisionLog {
		if d.Warning != "" {
			fmt.Fprintf(w, "\nwarning (stage %d): %s\n", d.Stage, d.Warning)
		}
	}
}

// #endregion estimate

// #region serve
func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the estimation API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return server.New(a.ctrl, a.store, a.registry).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config http_addr)")
	return cmd
}

// #endregion serve

// #region evaluator-proxy
// newProxyCmd exposes the configured OpenAI backend as the gRPC evaluator
// service, so controllers running with provider=grpc can share one API key
// and one rate limit.
func newProxyCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "evaluator-proxy",
		Short: "Serve the OpenAI evaluation backend over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Provider != "openai" {
				return &orchestrator.ConfigError{Field: "provider", Reason: "evaluator-proxy needs the openai provider"}
			}
			backend, _, err := buildClient(cfg)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.GRPCAddr
			}
			return serveEvaluator(ctx, addr, backend)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config grpc_addr)")
	return cmd
}

func serveEvaluator(ctx context.Context, addr string, backend evaluator.Client) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	evaluator.RegisterServer(srv, backend)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	log.Printf("[RPC] evaluator listening addr=%s", lis.Addr())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// #endregion evaluator-proxy
