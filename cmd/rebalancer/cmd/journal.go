package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalancer/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the execution ledger",
	Long: `Query and export execution records from the state store.

Subcommands:
  list    - Print executions as JSON
  csv     - Export executions as CSV
  org     - Print executions as org-mode entries for review
  report  - Summarize executions over a window

Examples:
  rebalancer journal list --symbol AAPL --since 2024-05-01
  rebalancer journal csv -o trades.csv
  rebalancer journal org --status error
  rebalancer journal report --since 2024-04-01`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print executions as JSON",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Export executions as CSV",
	Args:  cobra.NoArgs,
	RunE:  runJournalCSV,
}

var journalOrgCmd = &cobra.Command{
	Use:   "org",
	Short: "Print executions as org-mode entries",
	Args:  cobra.NoArgs,
	RunE:  runJournalOrg,
}

var journalReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize executions by status and symbol",
	Args:  cobra.NoArgs,
	RunE:  runJournalReport,
}

var (
	jSymbol string
	jStatus string
	jSince  string
	jUntil  string
	jLimit  int
	jOutput string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalCSVCmd)
	journalCmd.AddCommand(journalOrgCmd)
	journalCmd.AddCommand(journalReportCmd)

	journalCmd.PersistentFlags().StringVar(&jSymbol, "symbol", "", "only this symbol")
	journalCmd.PersistentFlags().StringVar(&jStatus, "status", "", "only this status (submitted, error)")
	journalCmd.PersistentFlags().StringVar(&jSince, "since", "", "from this day, inclusive (YYYY-MM-DD)")
	journalCmd.PersistentFlags().StringVar(&jUntil, "until", "", "up to this day, exclusive (YYYY-MM-DD)")
	journalCmd.PersistentFlags().IntVarP(&jLimit, "limit", "n", 0, "maximum records (0 = all)")
	journalCSVCmd.Flags().StringVarP(&jOutput, "output", "o", "", "output file (default stdout)")
}

func journalFilter(accountID string) (journal.Filter, error) {
	f := journal.Filter{
		AccountID: accountID,
		Symbol:    jSymbol,
		Status:    journal.Status(jStatus),
		Limit:     jLimit,
	}
	var err error
	if jSince != "" {
		if f.Since, err = time.Parse(journal.DayLayout, jSince); err != nil {
			return f, fmt.Errorf("bad --since %q: %w", jSince, err)
		}
	}
	if jUntil != "" {
		if f.Until, err = time.Parse(journal.DayLayout, jUntil); err != nil {
			return f, fmt.Errorf("bad --until %q: %w", jUntil, err)
		}
	}
	return f, nil
}

// openLedger opens the state store without connecting to a brokerage.
func openLedger() (journal.Store, journal.Filter, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, journal.Filter{}, err
	}
	f, err := journalFilter(cfg.Account.ID)
	if err != nil {
		return nil, f, err
	}
	store, err := journal.Open(cfg.State.DSN)
	if err != nil {
		return nil, f, fmt.Errorf("open state store: %w", err)
	}
	return store, f, nil
}

func listExecutions(cmd *cobra.Command) ([]journal.Execution, error) {
	store, f, err := openLedger()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	execs, err := store.ListExecutions(cmd.Context(), f)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return execs, nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	execs, err := listExecutions(cmd)
	if err != nil {
		return err
	}
	if execs == nil {
		execs = []journal.Execution{}
	}
	return printJSON(cmd.OutOrStdout(), execs)
}

func runJournalCSV(cmd *cobra.Command, args []string) error {
	execs, err := listExecutions(cmd)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jOutput != "" {
		f, err := os.Create(jOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", jOutput, err)
		}
		defer f.Close()
		w = f
	}
	if err := journal.WriteCSV(w, execs); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if jOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d executions to %s\n", len(execs), jOutput)
	}
	return nil
}

func runJournalOrg(cmd *cobra.Command, args []string) error {
	execs, err := listExecutions(cmd)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No executions found.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatExecutionsOrg(execs))
	return nil
}

func runJournalReport(cmd *cobra.Command, args []string) error {
	store, f, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	until := f.Until
	if until.IsZero() {
		until = time.Now().Add(time.Nanosecond)
	}
	sum, err := journal.Report(cmd.Context(), store, f.AccountID, f.Since, until)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), sum)
}
