// Package main provides the radicugloss binary: score result lists from the
// command line, run batch evaluations, or serve the scoring API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/radicugloss/radicugloss/internal/config"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "radicugloss",
		Short: "RaDiCuGLoss - rank discounted cumulative gain and loss",
		Long: `radicugloss scores a returned result list against a graded relevance set.
It rewards relevant items in good positions and charges for intruders and
for relevant items that were never returned.

Run 'radicugloss score' to score one list.
Run 'radicugloss batch' to evaluate a file of judged queries.
Run 'radicugloss serve' to start the HTTP and gRPC server.
Run 'radicugloss history' to see how a query scored over time.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		scoreCmd(),
		batchCmd(),
		serveCmd(),
		replayCmd(),
		historyCmd(),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "radicugloss %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// loadConfig reads the --config file, if any, over defaults and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// cliLogger logs to stderr so stdout stays machine readable.
func cliLogger(cmd *cobra.Command) *logger.Logger {
	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	return logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json":
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
