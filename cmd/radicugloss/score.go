package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/radicugloss/radicugloss/internal/client"
	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/internal/grpcclient"
)

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one result list against a relevance set",
		Long: `Score a returned result list against its true relevance set.

By default relevance values are ranks where 1 is best (--invert). Pass
--invert=false when larger values already mean more relevant.

Examples:
  radicugloss score --results a,b,c --relevance a=1,b=2,c=2
  radicugloss score --results-file results.txt --judgments set.yaml --k 10
  radicugloss score --results a,x --relevance a=1 --explain
  radicugloss score --server localhost:5679 --results a,b --relevance a=1,b=2
  radicugloss score --server http://localhost:5678 --query-id q1 --results a --relevance a=1`,
		Args: cobra.NoArgs,
		RunE: runScore,
	}

	cmd.Flags().StringSlice("results", nil, "returned items, in order")
	cmd.Flags().String("results-file", "", "file with one returned item per line (- for stdin)")
	cmd.Flags().StringToString("relevance", nil, "relevance set as item=value pairs")
	cmd.Flags().String("judgments", "", "YAML or JSON file mapping item to relevance (- for stdin)")
	cmd.Flags().String("query-id", "", "query ID, recorded with the score when scoring remotely")
	cmd.Flags().Bool("explain", false, "print the per-position breakdown")
	cmd.Flags().String("server", "", "score on a running server instead of locally (gRPC host:port or http:// URL)")
	addScoreParamFlags(cmd)

	return cmd
}

// addScoreParamFlags registers the scoring overrides shared by score and batch.
func addScoreParamFlags(cmd *cobra.Command) {
	cmd.Flags().Int("k", 0, "only score the first k results")
	cmd.Flags().Float64("fp-penalty", 1, "false positive penalty factor")
	cmd.Flags().Float64("fn-penalty", 1, "false negative penalty factor")
	cmd.Flags().Bool("invert", true, "treat relevance values as ranks where 1 is best")
	cmd.Flags().Bool("punish-max", false, "treat items with the largest raw value as must-not-return")
}

// scoreParamsFromFlags returns the overrides the user actually set.
func scoreParamsFromFlags(cmd *cobra.Command) evaluation.ScoreParams {
	var p evaluation.ScoreParams
	flags := cmd.Flags()
	if flags.Changed("k") {
		k, _ := flags.GetInt("k")
		p.K = &k
	}
	if flags.Changed("fp-penalty") {
		v, _ := flags.GetFloat64("fp-penalty")
		p.FPPenalty = &v
	}
	if flags.Changed("fn-penalty") {
		v, _ := flags.GetFloat64("fn-penalty")
		p.FNPenalty = &v
	}
	if flags.Changed("invert") {
		v, _ := flags.GetBool("invert")
		p.Invert = &v
	}
	if flags.Changed("punish-max") {
		v, _ := flags.GetBool("punish-max")
		p.PunishMax = &v
	}
	return p
}

func runScore(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	req, err := scoreRequestFromFlags(cmd)
	if err != nil {
		return err
	}

	var res *evaluation.ScoreResult
	if addr, _ := cmd.Flags().GetString("server"); addr != "" {
		res, err = scoreRemote(cmd.Context(), addr, req)
	} else {
		res, err = scoreLocal(cmd, req)
	}
	if err != nil {
		return err
	}

	if format == "json" {
		return printJSON(cmd.OutOrStdout(), res)
	}
	return printScore(cmd.OutOrStdout(), res)
}

func scoreRequestFromFlags(cmd *cobra.Command) (evaluation.ScoreRequest, error) {
	flags := cmd.Flags()
	req := evaluation.ScoreRequest{ScoreParams: scoreParamsFromFlags(cmd)}
	req.QueryID, _ = flags.GetString("query-id")
	req.Explain, _ = flags.GetBool("explain")

	results, _ := flags.GetStringSlice("results")
	resultsFile, _ := flags.GetString("results-file")
	switch {
	case resultsFile != "" && len(results) > 0:
		return req, errors.New("use either --results or --results-file, not both")
	case resultsFile != "":
		loaded, err := loadResults(resultsFile, cmd.InOrStdin())
		if err != nil {
			return req, err
		}
		results = loaded
	}
	req.Results = results

	pairs, _ := flags.GetStringToString("relevance")
	judgmentsFile, _ := flags.GetString("judgments")
	switch {
	case judgmentsFile != "" && len(pairs) > 0:
		return req, errors.New("use either --relevance or --judgments, not both")
	case judgmentsFile != "":
		set, err := loadRelevanceSet(judgmentsFile, cmd.InOrStdin())
		if err != nil {
			return req, err
		}
		req.Judgments = set
	case len(pairs) > 0:
		set, err := parseRelevance(pairs)
		if err != nil {
			return req, err
		}
		req.Judgments = set
	default:
		return req, errors.New("a relevance set is required (--relevance or --judgments)")
	}

	return req, nil
}

func scoreLocal(cmd *cobra.Command, req evaluation.ScoreRequest) (*evaluation.ScoreResult, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	// Local runs have no history store, so the query ID is only echoed back.
	e := evaluation.NewEvaluator(cfg.Scoring.Options(), evaluation.WithLogger(cliLogger(cmd)))
	return e.Score(cmd.Context(), "cli", req)
}

// scoreRemote scores over HTTP for http(s) URLs and over gRPC otherwise.
func scoreRemote(ctx context.Context, addr string, req evaluation.ScoreRequest) (*evaluation.ScoreResult, error) {
	if isHTTPAddress(addr) {
		return client.New(client.Config{BaseURL: strings.TrimSuffix(addr, "/")}).Score(ctx, req)
	}

	c, err := grpcclient.New(grpcclient.Config{ServerAddress: addr})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Score(ctx, req)
}

func isHTTPAddress(addr string) bool {
	return strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://")
}

func printScore(w io.Writer, res *evaluation.ScoreResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if res.QueryID != "" {
		fmt.Fprintf(tw, "query:\t%s\n", res.QueryID)
	}
	fmt.Fprintf(tw, "nrdcgl:\t%.6f\n", res.NRDCGL)
	fmt.Fprintf(tw, "pnrdcgl:\t%.6f\n", res.PNRDCGL)
	fmt.Fprintf(tw, "rdcgl:\t%.6f\n", res.RDCGL)
	fmt.Fprintf(tw, "ideal:\t%.6f\n", res.Ideal)
	fmt.Fprintf(tw, "false positives:\t%d\n", res.FalsePositives)
	fmt.Fprintf(tw, "missed:\t%d\n", res.Missed)

	if b := res.Breakdown; b != nil {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "POS\tITEM\tKIND\tRELEVANCE\tTIER\tGAIN\tPENALTY")
		for _, e := range b.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%g\t%d-%d\t%.6f\t%.6f\n",
				e.Position, e.Item, e.Kind, e.Relevance, e.Tier.Start, e.Tier.End, e.Gain, e.Penalty)
		}
		if len(b.Missed) > 0 {
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "MISSED\tRELEVANCE\tTIER\tPENALTY")
			for _, m := range b.Missed {
				fmt.Fprintf(tw, "%s\t%g\t%d-%d\t%.6f\n", m.Item, m.Relevance, m.Tier.Start, m.Tier.End, m.Penalty)
			}
		}

		gains := b.Gains()
		items := make([]string, 0, len(gains))
		for item := range gains {
			items = append(items, item)
		}
		sort.Strings(items)
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "ITEM\tNET GAIN")
		for _, item := range items {
			fmt.Fprintf(tw, "%s\t%.6f\n", item, gains[item])
		}
		fmt.Fprintf(tw, "total\t%.6f\n", gains.Total())
	}
	return tw.Flush()
}
