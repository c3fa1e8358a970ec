package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/radicugloss/radicugloss/internal/bus"
	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/internal/history"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Evaluate a file of judged queries",
		Long: `Evaluate every query in a YAML or JSON file and print per-query scores
plus a summary. Use - to read the file from stdin.

The file holds a list of queries, each with an id, its results and
optionally its judgments:

  queries:
    - id: q1
      results: [a, b, c]
      judgments: {a: 1, b: 2}
  ks: [1, 5, 10]

Queries without judgments are scored against --judgments, a list of
{query_id, doc_id, relevance} records.`,
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}

	cmd.Flags().String("judgments", "", "YAML or JSON list of query_id/doc_id/relevance judgments")
	cmd.Flags().IntSlice("ks", nil, "cutoffs for NDCG, recall and precision (default 1,3,5,10)")
	cmd.Flags().Int("concurrency", 0, "queries scored in parallel (default from config)")
	cmd.Flags().Bool("record", false, "append scores to the configured history store")
	cmd.Flags().Bool("publish", false, "publish the completed run on the configured event bus")
	cmd.Flags().Bool("explain", false, "include per-position breakdowns (json output)")
	addScoreParamFlags(cmd)

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cliLogger(cmd)
	flags := cmd.Flags()

	var req evaluation.Request
	if err := decodeFile(args[0], cmd.InOrStdin(), &req); err != nil {
		return err
	}
	mergeScoreParams(&req.ScoreParams, scoreParamsFromFlags(cmd))
	if flags.Changed("ks") {
		req.Ks, _ = flags.GetIntSlice("ks")
	}
	if explain, _ := flags.GetBool("explain"); explain {
		req.Explain = true
	}

	concurrency := cfg.Scoring.BatchConcurrency
	if flags.Changed("concurrency") {
		concurrency, _ = flags.GetInt("concurrency")
	}
	opts := []evaluation.Option{
		evaluation.WithLogger(log),
		evaluation.WithConcurrency(concurrency),
		evaluation.WithMaxBatchSize(cfg.Scoring.MaxBatchSize),
	}

	if record, _ := flags.GetBool("record"); record {
		store, err := history.New(cfg.History)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer store.Close()
		opts = append(opts, evaluation.WithHistory(store))
	}

	if publish, _ := flags.GetBool("publish"); publish {
		b, err := bus.NewBus(cfg.Bus, log)
		if err != nil {
			return fmt.Errorf("failed to create event bus: %w", err)
		}
		defer b.Close()
		opts = append(opts, evaluation.WithPublisher(b, cfg.Bus.Topic))
	}

	e := evaluation.NewEvaluator(cfg.Scoring.Options(), opts...)

	if path, _ := flags.GetString("judgments"); path != "" {
		judgments, err := loadJudgmentList(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		e.LoadJudgments(judgments)
		log.Debug("Loaded judgments", "count", len(judgments), "path", path)
	}

	run, err := e.Evaluate(cmd.Context(), req)
	if err != nil {
		return err
	}

	if format == "json" {
		return printJSON(cmd.OutOrStdout(), run)
	}
	return printRun(cmd.OutOrStdout(), run)
}

// mergeScoreParams applies the set fields of override onto dst.
func mergeScoreParams(dst *evaluation.ScoreParams, override evaluation.ScoreParams) {
	if override.K != nil {
		dst.K = override.K
	}
	if override.FPPenalty != nil {
		dst.FPPenalty = override.FPPenalty
	}
	if override.FNPenalty != nil {
		dst.FNPenalty = override.FNPenalty
	}
	if override.Invert != nil {
		dst.Invert = override.Invert
	}
	if override.PunishMax != nil {
		dst.PunishMax = override.PunishMax
	}
}

func printRun(w io.Writer, run *evaluation.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "QUERY\tNRDCGL\tPNRDCGL\tRDCGL\tMRR\tAP\tFP\tMISSED")
	for _, r := range run.Results {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.6f\t%.4f\t%.4f\t%d\t%d\n",
			r.QueryID, r.NRDCGL, r.PNRDCGL, r.RDCGL, r.MRR, r.AP, r.FalsePositives, r.Missed)
	}

	s := run.Summary
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "queries:\t%d\n", s.QueryCount)
	fmt.Fprintf(tw, "mean nrdcgl:\t%.6f\n", s.MeanNRDCGL)
	fmt.Fprintf(tw, "mean pnrdcgl:\t%.6f\n", s.MeanPNRDCGL)
	fmt.Fprintf(tw, "mrr:\t%.4f\n", s.MeanMRR)
	fmt.Fprintf(tw, "map:\t%.4f\n", s.MAP)
	for _, k := range sortedKs(s.MeanNDCG) {
		fmt.Fprintf(tw, "ndcg@%d:\t%.4f\n", k, s.MeanNDCG[k])
	}
	for _, k := range sortedKs(s.MeanRecall) {
		fmt.Fprintf(tw, "recall@%d:\t%.4f\n", k, s.MeanRecall[k])
	}
	for _, k := range sortedKs(s.MeanPrecision) {
		fmt.Fprintf(tw, "precision@%d:\t%.4f\n", k, s.MeanPrecision[k])
	}
	fmt.Fprintf(tw, "duration:\t%s\n", run.Duration)

	return tw.Flush()
}

func sortedKs(m map[int]float64) []int {
	ks := make([]int, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}
