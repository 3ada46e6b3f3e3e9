package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalancer/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate, validate or show configuration",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file
  show     - Print the effective configuration (file, .env and environment)

Examples:
  rebalancer config init -o rebalancer.yaml
  rebalancer config validate -f rebalancer.yaml
  rebalancer config show -c rebalancer.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "rebalancer.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nSet ALPACA_API_KEY and ALPACA_API_SECRET (or mode: sim) and run with:")
	fmt.Fprintf(out, "  rebalancer rebalance -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account: %s (%s)\n", cfg.Account.ID, cfg.Account.Mode)
	fmt.Fprintf(out, "  Limits: position %.0f%%, exposure %.0f%%, daily loss %.1f%%, %d trades/day\n",
		cfg.Risk.MaxPositionPct*100, cfg.Risk.MaxTotalExposure*100, cfg.Risk.MaxDailyLoss*100, cfg.Risk.MaxDailyTrades)
	fmt.Fprintf(out, "  Rebalance: %s, %d groups\n", cfg.Rebalance.Cadence, len(cfg.Rebalance.Groups))
	fmt.Fprintf(out, "  Signal: %s, %d tickers\n", cfg.Signal.Cadence, len(cfg.Signal.Tickers))
	fmt.Fprintf(out, "  State: %s\n", redactDSN(cfg.State.DSN))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	shown := *cfg
	shown.Alpaca.APIKey = redact(shown.Alpaca.APIKey)
	shown.Alpaca.APISecret = redact(shown.Alpaca.APISecret)
	shown.Server.InvokeSecret = redact(shown.Server.InvokeSecret)
	shown.State.DSN = redactDSN(shown.State.DSN)
	return printJSON(cmd.OutOrStdout(), shown)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
