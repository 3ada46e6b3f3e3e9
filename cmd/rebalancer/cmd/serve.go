package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalancer/metrics"
	"github.com/rustyeddy/rebalancer/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP trigger endpoints",
	Long: `Listen for scheduler invocations.

Endpoints:
  GET|POST /run        signal job
  POST     /rebalance  rebalance job
  GET|POST /report     ledger summary (?since=YYYY-MM-DD&until=...)
  GET      /healthz    liveness
  GET      /metrics    Prometheus metrics

Triggers require the invoke secret in the X-Invoke-Token header or the
token query parameter when one is configured.

Example:
  rebalancer serve -c rebalancer.yaml --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	m := metrics.New(nil)
	a, err := newApp(m)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	srv := server.New(a.coord,
		server.WithSecret(a.cfg.Server.InvokeSecret),
		server.WithLogger(a.log),
		server.WithGatherer(m.Registry()),
	)

	ctx, cancel := signalContext()
	defer cancel()
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
}
