// Package evaluation scores judged result lists with RaDiCuGLoss and its
// classical companions (NDCG, recall, precision, MRR, MAP), one query at a
// time or as a batch run.
package evaluation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/radicugloss/radicugloss/internal/bus"
	"github.com/radicugloss/radicugloss/internal/history"
	apperrors "github.com/radicugloss/radicugloss/internal/pkg/errors"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
	"github.com/radicugloss/radicugloss/internal/pkg/security"
	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// Source identifies this service on published events.
const Source = "radicugloss"

// Recorder receives scoring and evaluation measurements.
type Recorder interface {
	RecordScore(surface string, b *radicugloss.Breakdown, err error)
	ObserveEvaluation(queries int, d time.Duration, err error)
	RecordHistoryWrite(err error)
}

// HistoryStore persists per-query score points.
type HistoryStore interface {
	Append(ctx context.Context, p history.Point) error
	Since(ctx context.Context, queryID string, since time.Time, limit int) ([]history.Point, error)
	Delete(ctx context.Context, queryID string) error
}

// Publisher publishes bus events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event bus.Event) error
}

type nopRecorder struct{}

func (nopRecorder) RecordScore(string, *radicugloss.Breakdown, error) {}
func (nopRecorder) ObserveEvaluation(int, time.Duration, error)       {}
func (nopRecorder) RecordHistoryWrite(error)                          {}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(e *Evaluator) { e.log = log }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// WithHistory enables score history.
func WithHistory(h HistoryStore) Option {
	return func(e *Evaluator) { e.history = h }
}

// WithPublisher publishes an event for every completed run on topic.
func WithPublisher(p Publisher, topic string) Option {
	return func(e *Evaluator) {
		e.publisher = p
		if topic != "" {
			e.topic = topic
		}
	}
}

// WithConcurrency bounds how many queries of a batch are scored at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxBatchSize rejects batches with more queries than n (0 = unlimited).
func WithMaxBatchSize(n int) Option {
	return func(e *Evaluator) { e.maxBatch = n }
}

// Evaluator orchestrates scoring and evaluation.
type Evaluator struct {
	defaults    radicugloss.Options
	concurrency int
	maxBatch    int
	topic       string

	log       *logger.Logger
	recorder  Recorder
	history   HistoryStore
	publisher Publisher

	mu        sync.RWMutex
	judgments map[string]radicugloss.RelevanceSet // queryID -> item -> relevance

	now func() time.Time
}

// NewEvaluator creates an evaluator. defaults apply wherever a request leaves
// a scoring parameter unset.
func NewEvaluator(defaults radicugloss.Options, opts ...Option) *Evaluator {
	e := &Evaluator{
		defaults:    defaults,
		concurrency: 8,
		topic:       bus.TopicEvaluationCompleted,
		log:         logger.Discard(),
		recorder:    nopRecorder{},
		judgments:   make(map[string]radicugloss.RelevanceSet),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Defaults returns the options applied to requests that override nothing.
func (e *Evaluator) Defaults() radicugloss.Options {
	return e.defaults
}

// LoadJudgments stores relevance judgments for queries that arrive without
// their own. Later judgments for the same pair replace earlier ones.
func (e *Evaluator) LoadJudgments(judgments []RelevanceJudgment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, j := range judgments {
		if e.judgments[j.QueryID] == nil {
			e.judgments[j.QueryID] = make(radicugloss.RelevanceSet)
		}
		e.judgments[j.QueryID][j.DocID] = j.Relevance
	}
}

// Judgments returns a copy of the loaded judgments for queryID.
func (e *Evaluator) Judgments(queryID string) (radicugloss.RelevanceSet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set, ok := e.judgments[queryID]
	if !ok {
		return nil, false
	}
	out := make(radicugloss.RelevanceSet, len(set))
	for item, v := range set {
		out[item] = v
	}
	return out, true
}

func (e *Evaluator) judgmentsFor(q Query) (radicugloss.RelevanceSet, error) {
	if q.Judgments != nil {
		return q.Judgments, nil
	}
	if set, ok := e.Judgments(q.ID); ok {
		return set, nil
	}
	return nil, apperrors.ValidationError(fmt.Sprintf("query %s has no relevance judgments", q.ID)).
		WithDetail("query_id", q.ID)
}

// Score scores a single result list. surface labels the caller in metrics.
func (e *Evaluator) Score(ctx context.Context, surface string, req ScoreRequest) (*ScoreResult, error) {
	if req.QueryID != "" {
		if err := checkQueryID(req.QueryID); err != nil {
			return nil, err
		}
	}
	opts := req.Apply(e.defaults)
	b, err := radicugloss.Explain(req.Results, req.Judgments, opts)
	e.recorder.RecordScore(surface, b, err)
	if err != nil {
		e.log.WithContext(ctx).WithError(err).Debug("score rejected", "surface", surface)
		return nil, apperrors.FromScoreError(err)
	}

	res := &ScoreResult{
		QueryID:        req.QueryID,
		NRDCGL:         b.Normalized,
		PNRDCGL:        b.Positive(),
		RDCGL:          b.Raw,
		Ideal:          b.Ideal,
		FalsePositives: b.FalsePositives(),
		Missed:         len(b.Missed),
	}
	if req.Explain {
		res.Breakdown = b
	}

	if req.QueryID != "" {
		e.appendHistory(ctx, history.Point{
			QueryID:   req.QueryID,
			Timestamp: e.now(),
			NRDCGL:    res.NRDCGL,
			PNRDCGL:   res.PNRDCGL,
			RDCGL:     res.RDCGL,
		})
	}
	return res, nil
}

// EvaluateQuery scores one query at every cutoff in ks.
func (e *Evaluator) EvaluateQuery(ctx context.Context, q Query, opts radicugloss.Options, ks []int, explain bool) (*EvaluationResult, error) {
	set, err := e.judgmentsFor(q)
	if err != nil {
		return nil, err
	}

	b, err := radicugloss.Explain(q.Results, set, opts)
	e.recorder.RecordScore("batch", b, err)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.ID, err)
	}

	considered := q.Results
	if opts.K != nil && *opts.K < len(considered) {
		considered = considered[:*opts.K]
	}
	grades := Grades(considered, set, opts.Invert, opts.PunishMax)
	ideal := IdealGrades(set, opts.Invert, opts.PunishMax)

	result := &EvaluationResult{
		QueryID:        q.ID,
		Query:          q.Text,
		NRDCGL:         b.Normalized,
		PNRDCGL:        b.Positive(),
		RDCGL:          b.Raw,
		Ideal:          b.Ideal,
		NDCG:           make(map[int]float64, len(ks)),
		Recall:         make(map[int]float64, len(ks)),
		Precision:      make(map[int]float64, len(ks)),
		MRR:            MRR(grades),
		AP:             AveragePrecision(grades, len(ideal)),
		ResultCount:    len(q.Results),
		FalsePositives: b.FalsePositives(),
		Missed:         len(b.Missed),
	}
	if explain {
		result.Breakdown = b
	}

	for _, k := range ks {
		result.NDCG[k] = NDCG(grades, ideal, k)
		result.Recall[k] = Recall(grades, k, len(ideal))
		result.Precision[k] = Precision(grades, k)
	}

	e.log.WithContext(ctx).WithQuery(q.ID).Debug("query evaluated",
		"nrdcgl", result.NRDCGL,
		"false_positives", result.FalsePositives,
		"missed", result.Missed,
	)
	return result, nil
}

// Evaluate scores every query of req concurrently. Results keep the order of
// req.Queries; the first failing query fails the run.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Run, error) {
	start := e.now()
	run, err := e.evaluate(ctx, req, start)
	e.recorder.ObserveEvaluation(len(req.Queries), e.now().Sub(start), err)
	if err != nil {
		return nil, err
	}

	e.log.WithContext(ctx).Info("evaluation completed",
		"run_id", run.ID,
		"queries", run.Summary.QueryCount,
		"mean_nrdcgl", run.Summary.MeanNRDCGL,
		"duration", run.Duration,
	)

	for _, r := range run.Results {
		e.appendHistory(ctx, history.Point{
			QueryID:   r.QueryID,
			RunID:     run.ID,
			Timestamp: run.StartedAt,
			NRDCGL:    r.NRDCGL,
			PNRDCGL:   r.PNRDCGL,
			RDCGL:     r.RDCGL,
		})
	}
	e.publish(ctx, run)
	return run, nil
}

func (e *Evaluator) evaluate(ctx context.Context, req Request, start time.Time) (*Run, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if e.maxBatch > 0 && len(req.Queries) > e.maxBatch {
		return nil, apperrors.ValidationError(fmt.Sprintf("batch has %d queries, limit is %d", len(req.Queries), e.maxBatch))
	}
	for _, q := range req.Queries {
		if err := checkQueryID(q.ID); err != nil {
			return nil, err
		}
	}

	opts := req.Apply(e.defaults)
	if err := opts.Validate(); err != nil {
		return nil, apperrors.FromScoreError(err)
	}
	ks := req.Ks
	if len(ks) == 0 {
		ks = DefaultKs
	}

	results := make([]*EvaluationResult, len(req.Queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, q := range req.Queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.EvaluateQuery(gctx, q, opts, ks, req.Explain)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.FromScoreError(err)
	}

	id := uuid.NewString()
	summary := e.Summarize(results)
	summary.RunID = id
	return &Run{
		ID:        id,
		StartedAt: start,
		Duration:  e.now().Sub(start),
		Results:   results,
		Summary:   summary,
	}, nil
}

// Summarize aggregates results across queries.
func (e *Evaluator) Summarize(results []*EvaluationResult) *EvaluationSummary {
	summary := &EvaluationSummary{
		QueryCount:    len(results),
		MeanNDCG:      make(map[int]float64),
		MeanRecall:    make(map[int]float64),
		MeanPrecision: make(map[int]float64),
	}
	if len(results) == 0 {
		return summary
	}

	// Aggregate
	for _, r := range results {
		summary.MeanNRDCGL += r.NRDCGL
		summary.MeanPNRDCGL += r.PNRDCGL
		summary.MeanMRR += r.MRR
		summary.MAP += r.AP

		for k, v := range r.NDCG {
			summary.MeanNDCG[k] += v
		}
		for k, v := range r.Recall {
			summary.MeanRecall[k] += v
		}
		for k, v := range r.Precision {
			summary.MeanPrecision[k] += v
		}
	}

	// Average
	n := float64(len(results))
	summary.MeanNRDCGL /= n
	summary.MeanPNRDCGL /= n
	summary.MeanMRR /= n
	summary.MAP /= n

	for k := range summary.MeanNDCG {
		summary.MeanNDCG[k] /= n
	}
	for k := range summary.MeanRecall {
		summary.MeanRecall[k] /= n
	}
	for k := range summary.MeanPrecision {
		summary.MeanPrecision[k] /= n
	}

	return summary
}

// History returns the recorded points of queryID, oldest first.
func (e *Evaluator) History(ctx context.Context, queryID string, since time.Time, limit int) ([]history.Point, error) {
	if err := checkQueryID(queryID); err != nil {
		return nil, err
	}
	if e.history == nil {
		return nil, apperrors.New(apperrors.CodeUnavailable, "score history is disabled")
	}
	points, err := e.history.Since(ctx, queryID, since, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeHistory, "read history", err)
	}
	return points, nil
}

// DeleteHistory drops every recorded point of queryID.
func (e *Evaluator) DeleteHistory(ctx context.Context, queryID string) error {
	if err := checkQueryID(queryID); err != nil {
		return err
	}
	if e.history == nil {
		return apperrors.New(apperrors.CodeUnavailable, "score history is disabled")
	}
	if err := e.history.Delete(ctx, queryID); err != nil {
		return apperrors.Wrap(apperrors.CodeHistory, "delete history", err)
	}
	e.log.WithContext(ctx).WithQuery(queryID).Info("history deleted")
	return nil
}

// checkQueryID rejects IDs unfit for history keys and URLs.
func checkQueryID(id string) error {
	if err := security.ValidateQueryID(id); err != nil {
		return apperrors.ValidationError(err.Error()).WithDetail("query_id", security.SanitizeForLog(id))
	}
	return nil
}

// appendHistory is best effort: a failed write is logged and counted.
func (e *Evaluator) appendHistory(ctx context.Context, p history.Point) {
	if e.history == nil {
		return
	}
	err := e.history.Append(ctx, p)
	e.recorder.RecordHistoryWrite(err)
	if err != nil {
		e.log.WithContext(ctx).WithQuery(p.QueryID).WithError(err).Warn("history write failed")
	}
}

// publish is best effort: a failed publish is logged.
func (e *Evaluator) publish(ctx context.Context, run *Run) {
	if e.publisher == nil {
		return
	}
	event := bus.NewEvent(bus.TypeEvaluationCompleted, Source, run.ID, run)
	if err := e.publisher.Publish(ctx, e.topic, event); err != nil {
		e.log.WithContext(ctx).WithError(err).Warn("publish evaluation event failed", "run_id", run.ID, "topic", e.topic)
	}
}
