package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted guard state",
	Long: `Show the day-start equity baseline, the circuit breaker, the last
period of each job and today's trade count.

Subcommands:
  show           - Print the current state
  reset-breaker  - Clear an active circuit breaker halt

Examples:
  rebalancer state show
  rebalancer state reset-breaker`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current guard state",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset-breaker",
	Short: "Clear an active circuit breaker halt",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.coord.Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), snap)
}

func runStateReset(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.ResetBreaker(cmd.Context()); err != nil {
		return fmt.Errorf("reset breaker: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Circuit breaker cleared for %s\n", a.cfg.Account.ID)
	return nil
}
