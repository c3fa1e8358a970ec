package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/radicugloss/radicugloss/internal/client"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history QUERY_ID",
		Short: "Show the recorded scores of a query",
		Long: `Fetch the score history of a query from a running server.

Examples:
  radicugloss history q1
  radicugloss history q1 --since 2026-10-01T00:00:00Z --limit 20
  radicugloss history q1 --server http://scoring.internal:5678 --format json
  radicugloss history q1 --clear`,
		Args: cobra.ExactArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().String("server", client.DefaultConfig().BaseURL, "server base URL")
	cmd.Flags().String("since", "", "only show scores at or after this RFC 3339 time")
	cmd.Flags().Int("limit", 0, "show at most the newest N scores (0 = all)")
	cmd.Flags().Bool("clear", false, "delete the query's recorded scores instead of showing them")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()

	var since time.Time
	if raw, _ := flags.GetString("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}
	limit, _ := flags.GetInt("limit")
	addr, _ := flags.GetString("server")
	if !isHTTPAddress(addr) {
		return fmt.Errorf("--server must be an http:// or https:// URL, got %q", addr)
	}

	c := client.New(client.Config{BaseURL: strings.TrimSuffix(addr, "/")})
	if del, _ := flags.GetBool("clear"); del {
		if err := c.DeleteHistory(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted history of %s\n", args[0])
		return nil
	}

	resp, err := c.History(cmd.Context(), args[0], since, limit)
	if err != nil {
		return err
	}

	if format == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tRUN\tNRDCGL\tPNRDCGL\tRDCGL")
	for _, p := range resp.Points {
		run := p.RunID
		if run == "" {
			run = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%.6f\n",
			p.Timestamp.Format(time.RFC3339), run, p.NRDCGL, p.PNRDCGL, p.RDCGL)
	}
	return tw.Flush()
}
