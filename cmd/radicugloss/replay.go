package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/radicugloss/radicugloss/internal/bus"
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish journaled evaluation events",
		Long: `Republish the events recorded in a bus journal onto the configured bus.
Use it to backfill a Kafka topic after a consumer outage.

Examples:
  radicugloss replay --journal events.jsonl
  radicugloss replay --since 2026-01-02T15:04:05Z`,
		Args: cobra.NoArgs,
		RunE: runReplay,
	}

	cmd.Flags().String("journal", "", "journal file (default bus.journal_path from config)")
	cmd.Flags().String("since", "", "only replay events after this RFC 3339 time")

	return cmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cliLogger(cmd)

	path, _ := cmd.Flags().GetString("journal")
	if path == "" {
		path = cfg.Bus.JournalPath
	}
	if path == "" {
		return errors.New("no journal configured (--journal or bus.journal_path)")
	}

	var since time.Time
	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}

	journal, err := bus.OpenJournal(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	// Replayed events must not be journaled a second time.
	busCfg := cfg.Bus
	busCfg.JournalPath = ""
	b, err := bus.NewBus(busCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer b.Close()

	n, err := journal.Replay(cmd.Context(), b, since)
	if err != nil {
		return fmt.Errorf("replayed %d events: %w", n, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events from %s\n", n, path)
	return nil
}
