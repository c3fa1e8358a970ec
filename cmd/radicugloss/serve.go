package main

import (
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/radicugloss/radicugloss/internal/pkg/logger"
	"github.com/radicugloss/radicugloss/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC scoring server",
		Long: `Start the scoring server.

The server exposes:
  - HTTP API on :5678 (configurable), including the legacy POST /nrdcgl
  - gRPC API on :5679 (configurable, --grpc-port 0 disables it)
  - Prometheus metrics on /metrics

Examples:
  radicugloss serve                      # Start with defaults
  radicugloss serve --port 8080          # Custom HTTP port
  radicugloss serve -c radicugloss.yaml  # Load a config file`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("host", "", "server host (overrides config)")
	cmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	cmd.Flags().Int("grpc-port", 0, "gRPC port, 0 disables (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("grpc-port") {
		cfg.GRPCPort, _ = flags.GetInt("grpc-port")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = "debug"
	}
	log := logger.New(level, cfg.Log.Format)

	s, err := server.New(cfg, version, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	log.Info("Starting radicugloss", "version", version, "commit", commit, "http", cfg.Address(), "grpc", cfg.GRPCAddress())
	return s.Start(ctx)
}
