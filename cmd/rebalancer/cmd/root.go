package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/broker/alpaca"
	"github.com/rustyeddy/rebalancer/broker/sim"
	"github.com/rustyeddy/rebalancer/config"
	"github.com/rustyeddy/rebalancer/engine"
	"github.com/rustyeddy/rebalancer/journal"
	"github.com/rustyeddy/rebalancer/market"
	"github.com/rustyeddy/rebalancer/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "rebalancer",
	Short: "Risk-managed portfolio rebalancing and order execution",
	Long: `Rebalancer keeps a brokerage account near its target weights and
trades a moving-average signal with risk-based sizing.

Every run is guarded by a once-per-period check, a daily loss circuit
breaker and a daily trade cap, and every submitted order is recorded in
the execution ledger.

Configuration comes from a YAML/JSON file (--config), a .env file and the
environment, in that order.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// app is everything a command needs to drive the engine.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store journal.Store
	coord *engine.Coordinator
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close state store", zap.Error(err))
	}
	_ = a.log.Sync()
}

func newApp(rec engine.Recorder) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("account", cfg.Account.ID), zap.String("mode", cfg.Account.Mode))

	b, md, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	store, err := journal.Open(cfg.State.DSN)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	coord := engine.New(b, md, store, opts,
		engine.WithLogger(log),
		engine.WithRecorder(rec),
	)
	return &app{cfg: cfg, log: log, store: store, coord: coord}, nil
}

// connect picks the brokerage and market data for the configured mode. Sim
// mode fills in memory; with Alpaca credentials present it prices off the
// live data feed.
func connect(cfg *config.Config, log *zap.Logger) (broker.Broker, market.Provider, error) {
	switch cfg.Account.Mode {
	case config.ModePaper, config.ModeLive:
		c, err := alpaca.New(cfg.AlpacaClientConfig(), log)
		if err != nil {
			return nil, nil, fmt.Errorf("alpaca: %w", err)
		}
		return c, c, nil

	case config.ModeSim:
		s := sim.NewEngine(cfg.Account.ID, cfg.Account.SimCash)
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			log.Warn("sim mode without alpaca credentials, no market data")
			return s, s, nil
		}
		ac := cfg.AlpacaClientConfig()
		ac.Mode = config.ModePaper
		feed, err := alpaca.New(ac, log)
		if err != nil {
			return nil, nil, fmt.Errorf("alpaca data feed: %w", err)
		}
		m := sim.NewMirror(s, feed)
		return m, m, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown mode %q", engine.ErrConfiguration, cfg.Account.Mode)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}
