package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "controller",
		Short: "Estimate the probability that a claim is true by adaptive LLM sampling",
		Long: `claimprob queries a model with a bank of paraphrased prompt templates,
aggregates the replies with a cluster bootstrap and escalates the sample
plan until the CI width, stability and imbalance gates pass or the plan
is exhausted.

Configuration is read from --config (YAML) and CLAIMPROB_* environment
variables; the environment wins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(
		newEstimateCmd(&configPath),
		newServeCmd(&configPath),
		newProxyCmd(&configPath),
	)
	return root
}

// #endregion main
