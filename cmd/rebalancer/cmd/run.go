package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalancer/engine"
)

// errRunFailed makes the process exit non-zero after the result is printed.
var errRunFailed = errors.New("run failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the signal job once",
	Long: `Evaluate the moving-average signal for each configured ticker and
submit risk-sized bracket orders for fresh buy signals.

The job runs at most once per period (daily by default). A second
invocation in the same period is skipped.

Example:
  rebalancer run -c rebalancer.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, (*engine.Coordinator).Run)
	},
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Rebalance to target weights once",
	Long: `Compute dollar targets from the configured groups, trade each
holding toward its target and submit the orders that pass the risk gate.

The job runs at most once per period (weekly by default).

Example:
  rebalancer rebalance -c rebalancer.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, (*engine.Coordinator).Rebalance)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rebalanceCmd)
}

func runJob(cmd *cobra.Command, job func(*engine.Coordinator, context.Context) engine.Result) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res := job(a.coord, ctx)
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Status == engine.StatusError {
		return errRunFailed
	}
	return nil
}
