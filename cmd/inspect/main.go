package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peakyragnar/hx-sub001/internal/gate"
	"github.com/peakyragnar/hx-sub001/internal/logging"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
	"github.com/peakyragnar/hx-sub001/internal/state"
)

// #region main

type options struct {
	dbPath  string
	last    int
	runID   string
	jsonOut bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "inspect --db path [--last N] [--run id] [--json]",
		Short:         "List or show persisted estimation runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.NewStore(opts.dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer store.Close()

			if opts.runID != "" {
				return runDetailMode(cmd.Context(), cmd.OutOrStdout(), store, opts.runID, opts.jsonOut)
			}
			return runListMode(cmd.Context(), cmd.OutOrStdout(), store, opts.last, opts.jsonOut)
		},
	}
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "path to the run database")
	cmd.Flags().IntVar(&opts.last, "last", 20, "show N most recent runs")
	cmd.Flags().StringVar(&opts.runID, "run", "", "show a single run in detail")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of table")
	cmd.MarkFlagRequired("db")
	return cmd
}

// #endregion main

// #region list-mode

func runListMode(ctx context.Context, w io.Writer, store *state.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(ctx, last)
	if err != nil {
		return err
	}
	if jsonOut {
		if runs == nil {
			runs = []state.RunSummary{}
		}
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	fmt.Fprintf(w, "%-36s | %-12s | %-7s | %-17s | %-6s | %s\n", "Run", "Status", "P(true)", "CI95", "Stages", "Claim")
	fmt.Fprintf(w, "%-36s-+-%-12s-+-%-7s-+-%-17s-+-%-6s-+-%s\n",
		dashes(36), dashes(12), dashes(7), dashes(17), dashes(6), dashes(20))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s | %-12s | %-7.4f | [%.4f, %.4f] | %-6d | %s\n",
			r.RunID, statusLabel(r.Status), r.Prob, r.CILo, r.CIHi, r.Stages, truncate(r.Claim, 60))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Run       *orchestrator.RunResult `json:"run"`
	Decisions []logging.DecisionEntry `json:"logged_decisions"`
}

func runDetailMode(ctx context.Context, w io.Writer, store *state.Store, runID string, jsonOut bool) error {
	run, err := store.GetRun(ctx, runID)
	if errors.Is(err, state.ErrRunNotFound) {
		return fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return err
	}
	logged, err := logging.ListDecisions(store.DB(), runID)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(w, detailOutput{Run: run, Decisions: logged})
	}

	f := run.Final
	fmt.Fprintf(w, "Run:            %s\n", run.RunID)
	fmt.Fprintf(w, "Run key:        %s\n", run.RunKey)
	fmt.Fprintf(w, "Claim:          %s\n", run.Claim)
	fmt.Fprintf(w, "Model:          %s (%s)\n", run.Model, run.PromptVersion)
	fmt.Fprintf(w, "Policy:         %s\n", run.Controller.Policy)
	fmt.Fprintf(w, "Status:         %s\n", statusLabel(run.Status()))
	fmt.Fprintf(w, "P(true):        %.4f\n", f.Prob)
	fmt.Fprintf(w, "CI95:           [%.4f, %.4f] width %.4f\n", f.CILo, f.CIHi, f.CIWidth)
	fmt.Fprintf(w, "Stability:      %.4f (%s)\n", f.Stability, f.StabilityBand)
	fmt.Fprintf(w, "Imbalance:      %.4f\n", f.ImbalanceRatio)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-5s | %-10s | %-7s | %-7s | %-7s | %-7s | %-4s | %s\n",
		"Stage", "T/K/R", "Width", "Stab", "Imbal", "Queries", "Fail", "Gates")
	fmt.Fprintf(w, "%s\n", dashes(78))
	for _, s := range run.Stages {
		fmt.Fprintf(w, "%-5d | %-10s | %-7.4f | %-7.4f | %-7.4f | %-7d | %-4d | %s\n",
			s.Index, fmt.Sprintf("%d/%d/%d", s.T, s.K, s.R),
			s.Stats.CIWidth, s.Stats.Stability, s.Stats.ImbalanceRatio,
			s.Queries, s.Failures, gateMarks(s.Gates))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Decisions:")
	for _, d := range run.DecisionLog {
		fmt.Fprintf(w, "  [%d] %-24s %s\n", d.Stage, d.Action, d.Reason)
		if d.Warning != "" {
			fmt.Fprintf(w, "      warning: %s\n", d.Warning)
		}
	}
	if len(logged) != len(run.DecisionLog) {
		fmt.Fprintf(w, "\nnote: decision_log has %d entries, run record has %d\n", len(logged), len(run.DecisionLog))
	}
	return nil
}

// gateMarks renders pass/fail per gate, e.g. "width:ok stab:FAIL imb:ok".
func gateMarks(r gate.GateReport) string {
	mark := func(c gate.Check) string {
		if c.Pass {
			return "ok"
		}
		return "FAIL"
	}
	return fmt.Sprintf("width:%s stab:%s imb:%s", mark(r.CIWidth), mark(r.Stability), mark(r.Imbalance))
}

// #endregion detail-mode

// #region helpers

func statusLabel(action string) string {
	if orchestrator.IsEscalation(action) {
		return "incomplete"
	}
	if action == "" {
		return "-"
	}
	return action
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dashes(n int) string {
	return strings.Repeat("-", n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// #endregion helpers
