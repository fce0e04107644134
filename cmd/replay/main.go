package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peakyragnar/hx-sub001/internal/replay"
	"github.com/peakyragnar/hx-sub001/internal/state"
)

// #region main

// usageError marks bad flag combinations; it exits 2 like load failures.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// errDiverged is returned when replayed decisions differ from the expected ones.
var errDiverged = errors.New("replay diverged")

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, errDiverged):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var fixturePath, dbPath, runID string
	cmd := &cobra.Command{
		Use:   "replay (--fixture f.json | --db path --run id)",
		Short: "Replay scripted or persisted runs and compare decisions",
		Long: `Fixture mode drives the controller with the fixture's scripted replies and
compares its decisions with the fixture's expected results.

DB mode rebuilds a fixture from a persisted run: every template replays the
probabilities it returned, and the run's own decisions are the expectation.

Exit status is 0 when every stage matches, 1 on divergence and 2 on errors.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFixture(cmd, fixturePath, dbPath, runID)
			if err != nil {
				return err
			}
			res, err := replay.Replay(cmd.Context(), f)
			if err != nil {
				return err
			}
			if printComparison(cmd.OutOrStdout(), res.Comparisons) > 0 {
				return errDiverged
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON (fixture mode)")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the run database (DB mode)")
	cmd.Flags().StringVar(&runID, "run", "", "run to replay (DB mode)")
	return cmd
}

// #endregion main

// #region load

func loadFixture(cmd *cobra.Command, fixturePath, dbPath, runID string) (*replay.Fixture, error) {
	switch {
	case fixturePath != "" && dbPath == "":
		return replay.LoadFixture(fixturePath)
	case fixturePath == "" && dbPath != "" && runID != "":
		store, err := state.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		run, err := store.GetRun(cmd.Context(), runID)
		if err != nil {
			return nil, err
		}
		return replay.FromRun(run), nil
	default:
		return nil, usageError{msg: "usage: replay --fixture path/to/fixture.json\n       replay --db path/to/claimprob.db --run <run-id>"}
	}
}

// #endregion load

// #region output

// printComparison writes the comparison table and returns the number of
// diverging stages.
func printComparison(w io.Writer, rows []replay.Comparison) int {
	fmt.Fprintf(w, "%-6s| %-24s| %-24s| %s\n", "Stage", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-6s+%-25s+%-25s+%s\n",
		"------", "-------------------------", "-------------------------", "------")

	matches := 0
	for _, r := range rows {
		match := "DIFF"
		if r.Match {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-6d| %-24s| %-24s| %s\n", r.Stage, r.Expected, r.Replayed, match)
	}

	diverge := len(rows) - matches
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", len(rows), matches, diverge)
	return diverge
}

// #endregion output
