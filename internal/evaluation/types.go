package evaluation

import (
	"time"

	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// DefaultKs are the cutoffs used when a request names none.
var DefaultKs = []int{1, 3, 5, 10}

// Query is one judged search: the returned items plus the relevance set they
// are scored against. A nil Judgments falls back to judgments loaded with
// LoadJudgments.
type Query struct {
	ID        string                   `json:"id" yaml:"id" validate:"required"`
	Text      string                   `json:"query,omitempty" yaml:"query,omitempty"`
	Results   []string                 `json:"results" yaml:"results"`
	Judgments radicugloss.RelevanceSet `json:"judgments,omitempty" yaml:"judgments,omitempty"`
}

// RelevanceJudgment represents a labeled relevance for a query-item pair.
// With rank inversion on (the default) 1 is the best rank.
type RelevanceJudgment struct {
	QueryID   string  `json:"query_id" yaml:"query_id" validate:"required"`
	DocID     string  `json:"doc_id" yaml:"doc_id" validate:"required"`
	Relevance float64 `json:"relevance" yaml:"relevance" validate:"gte=0"`
}

// ScoreParams overrides the configured scoring defaults. Nil fields keep the
// default.
type ScoreParams struct {
	K         *int     `json:"k,omitempty" yaml:"k,omitempty" validate:"omitempty,gte=0"`
	FPPenalty *float64 `json:"fp_penalty,omitempty" yaml:"fp_penalty,omitempty" validate:"omitempty,gte=0"`
	FNPenalty *float64 `json:"fn_penalty,omitempty" yaml:"fn_penalty,omitempty" validate:"omitempty,gte=0"`
	Invert    *bool    `json:"invert,omitempty" yaml:"invert,omitempty"`
	PunishMax *bool    `json:"punish_max,omitempty" yaml:"punish_max,omitempty"`
}

// Apply returns base with the set fields of p applied.
func (p ScoreParams) Apply(base radicugloss.Options) radicugloss.Options {
	opts := base
	if p.K != nil {
		opts = opts.WithK(*p.K)
	}
	if p.FPPenalty != nil {
		opts.FPPenalty = *p.FPPenalty
	}
	if p.FNPenalty != nil {
		opts.FNPenalty = *p.FNPenalty
	}
	if p.Invert != nil {
		opts.Invert = *p.Invert
	}
	if p.PunishMax != nil {
		opts.PunishMax = *p.PunishMax
	}
	return opts
}

// ScoreRequest scores a single result list.
type ScoreRequest struct {
	ScoreParams `yaml:",inline"`

	// QueryID is optional; when set the score is appended to the query's history.
	QueryID   string                   `json:"query_id,omitempty" yaml:"query_id,omitempty"`
	Results   []string                 `json:"results" yaml:"results"`
	Judgments radicugloss.RelevanceSet `json:"judgments" yaml:"judgments" validate:"required"`
	Explain   bool                     `json:"explain,omitempty" yaml:"explain,omitempty"`
}

// ScoreResult is the outcome of a ScoreRequest.
type ScoreResult struct {
	QueryID        string                 `json:"query_id,omitempty"`
	NRDCGL         float64                `json:"nrdcgl"`
	PNRDCGL        float64                `json:"pnrdcgl"`
	RDCGL          float64                `json:"rdcgl"`
	Ideal          float64                `json:"ideal"`
	FalsePositives int                    `json:"false_positives"`
	Missed         int                    `json:"missed"`
	Breakdown      *radicugloss.Breakdown `json:"breakdown,omitempty"`
}

// Request is a batch evaluation.
type Request struct {
	ScoreParams `yaml:",inline"`

	Queries []Query `json:"queries" yaml:"queries" validate:"required,min=1,dive"`
	Ks      []int   `json:"ks,omitempty" yaml:"ks,omitempty" validate:"omitempty,dive,gt=0"`
	Explain bool    `json:"explain,omitempty" yaml:"explain,omitempty"`
}

// EvaluationResult contains metrics for a single query
type EvaluationResult struct {
	QueryID string `json:"query_id"`
	Query   string `json:"query,omitempty"`

	NRDCGL  float64 `json:"nrdcgl"`
	PNRDCGL float64 `json:"pnrdcgl"`
	RDCGL   float64 `json:"rdcgl"`
	Ideal   float64 `json:"ideal"`

	NDCG      map[int]float64 `json:"ndcg"`      // NDCG@K for various K
	Recall    map[int]float64 `json:"recall"`    // Recall@K
	Precision map[int]float64 `json:"precision"` // Precision@K
	MRR       float64         `json:"mrr"`
	AP        float64         `json:"ap"` // Average Precision

	ResultCount    int `json:"result_count"`
	FalsePositives int `json:"false_positives"`
	Missed         int `json:"missed"`

	Breakdown *radicugloss.Breakdown `json:"breakdown,omitempty"`
}

// EvaluationSummary aggregates metrics across multiple queries
type EvaluationSummary struct {
	RunID         string          `json:"run_id,omitempty"`
	QueryCount    int             `json:"query_count"`
	MeanNRDCGL    float64         `json:"mean_nrdcgl"`
	MeanPNRDCGL   float64         `json:"mean_pnrdcgl"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanMRR       float64         `json:"mean_mrr"`
	MAP           float64         `json:"map"`
}

// Run is a completed batch evaluation.
type Run struct {
	ID        string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration_ns"`
	Results   []*EvaluationResult `json:"results"`
	Summary   *EvaluationSummary  `json:"summary"`
}
