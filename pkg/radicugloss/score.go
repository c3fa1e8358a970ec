package radicugloss

import (
	"fmt"
	"math"
)

// Options tunes a scoring run. The zero value is not the default; start from
// DefaultOptions.
type Options struct {
	// K limits scoring to the first K results. Nil scores every result; 0
	// considers nothing and scores 0.
	K *int

	// FPPenalty scales the charge for each false positive (0 disables it).
	FPPenalty float64

	// FNPenalty scales the charge for each missed relevant item (0 disables it).
	FNPenalty float64

	// Invert treats set values as ranks where 1 is best.
	Invert bool

	// PunishMax treats items carrying the largest raw value in the set as items
	// that should not appear at all: returning one is a false positive, missing
	// one costs nothing, and they are left out of the ideal ordering.
	PunishMax bool
}

// DefaultOptions returns full penalties, rank inversion and no cutoff.
func DefaultOptions() Options {
	return Options{
		FPPenalty: 1,
		FNPenalty: 1,
		Invert:    true,
	}
}

// WithK returns a copy of o with cutoff k.
func (o Options) WithK(k int) Options {
	o.K = &k
	return o
}

// Validate checks the cutoff and penalty factors.
func (o Options) Validate() error {
	if o.K != nil && *o.K < 0 {
		return fmt.Errorf("%w: k must not be negative, got %d", ErrInvalidArgument, *o.K)
	}
	if err := validatePenalty("fp_penalty", o.FPPenalty); err != nil {
		return err
	}
	return validatePenalty("fn_penalty", o.FNPenalty)
}

func validatePenalty(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a finite non-negative number, got %g", ErrInvalidArgument, name, v)
	}
	return nil
}

// cutoff returns how many of n leading items take part.
func (o Options) cutoff(n int) int {
	if o.K == nil {
		return n
	}
	return min(*o.K, n)
}

// EntryKind classifies a scored position.
type EntryKind string

const (
	KindRelevant      EntryKind = "relevant"
	KindFalsePositive EntryKind = "false_positive"
	KindDuplicate     EntryKind = "duplicate"
	KindSentinel      EntryKind = "sentinel"
)

// ScoredEntry is one considered position with its gain and penalty.
type ScoredEntry struct {
	AssumedRank
	Kind    EntryKind `json:"kind"`
	Gain    float64   `json:"gain"`
	Penalty float64   `json:"penalty"`
}

// MissedEntry is a relevant item that was never returned within the cutoff.
type MissedEntry struct {
	Item      string     `json:"item"`
	Relevance float64    `json:"relevance"`
	Tier      IdealRange `json:"tier"`
	Penalty   float64    `json:"penalty"`
}

// Breakdown is the full trace of one scoring run.
type Breakdown struct {
	Entries []ScoredEntry `json:"entries"`
	Missed  []MissedEntry `json:"missed"`

	// Raw is the unnormalized RDCGL.
	Raw float64 `json:"raw"`

	// Ideal is the gain of the ideal ordering under the same cutoff.
	Ideal float64 `json:"ideal"`

	// Normalized is Raw / Ideal, or 0 when Ideal is 0.
	Normalized float64 `json:"normalized"`
}

// Gains returns the net gain per item. Repeated items accumulate.
func (b *Breakdown) Gains() GainTable {
	table := make(GainTable, len(b.Entries))
	for _, e := range b.Entries {
		table[e.Item] += e.Gain - e.Penalty
	}
	return table
}

// Positive is the normalized score clamped at 0.
func (b *Breakdown) Positive() float64 {
	return math.Max(b.Normalized, 0)
}

// FalsePositives counts the intruding positions.
func (b *Breakdown) FalsePositives() int {
	n := 0
	for _, e := range b.Entries {
		if e.Kind != KindRelevant {
			n++
		}
	}
	return n
}

// Explain scores results against set and returns every intermediate value.
func Explain(results []string, set RelevanceSet, opts Options) (*Breakdown, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	normalized := Normalize(set, opts.Invert)
	if err := checkRange(normalized); err != nil {
		return nil, err
	}
	sentinels := sentinelItems(set, opts.PunishMax)
	eligible := normalized
	if len(sentinels) > 0 {
		eligible = make(RelevanceSet, len(normalized))
		for item, v := range normalized {
			if !sentinels[item] {
				eligible[item] = v
			}
		}
	}

	ideal := IdealOrdering(eligible)
	tiers := BuildIdealRanges(eligible)
	mapping := BuildAssumedRankMapping(results[:opts.cutoff(len(results))], eligible)

	b := &Breakdown{
		Entries: make([]ScoredEntry, 0, mapping.Len()),
		Missed:  []MissedEntry{},
	}

	for _, a := range mapping.Entries {
		e := ScoredEntry{AssumedRank: a, Kind: KindRelevant}
		switch {
		case a.Duplicate:
			e.Kind = KindDuplicate
		case sentinels[a.Item]:
			e.Kind = KindSentinel
		case !a.Known:
			e.Kind = KindFalsePositive
		}

		if a.FalsePositive() {
			e.Penalty = opts.FPPenalty * opportunity(ideal, eligible, a.Rank)
		} else {
			e.Gain = Gain(a.Relevance, a.Rank)
		}

		b.Raw += e.Gain - e.Penalty
		b.Entries = append(b.Entries, e)
	}

	// An empty answer scores 0 rather than the sum of everything it missed.
	if mapping.Len() > 0 {
		for _, item := range ideal {
			if mapping.Contains(item) {
				continue
			}
			v := eligible[item]
			tier := tiers[v]
			m := MissedEntry{
				Item:      item,
				Relevance: v,
				Tier:      tier,
				Penalty:   opts.FNPenalty * Gain(v, tier.Start),
			}
			b.Raw -= m.Penalty
			b.Missed = append(b.Missed, m)
		}
	}

	b.Ideal = idealGain(ideal, eligible, opts.cutoff(len(ideal)))
	if b.Ideal != 0 {
		b.Normalized = b.Raw / b.Ideal
	}
	if !finite(b.Raw) || !finite(b.Ideal) || !finite(b.Normalized) {
		return nil, fmt.Errorf("%w: score overflows float64 (raw %g, ideal %g)", ErrInvalidArgument, b.Raw, b.Ideal)
	}

	return b, nil
}

// RDCGL returns the unnormalized score.
func RDCGL(results []string, set RelevanceSet, opts Options) (float64, error) {
	b, err := Explain(results, set, opts)
	if err != nil {
		return 0, err
	}
	return b.Raw, nil
}

// NRDCGL returns the score divided by the ideal ordering's score. It is 1 for a
// perfect answer and 0 when the ideal score is 0 (empty set or k = 0). Heavy
// penalties can drive it below 0.
func NRDCGL(results []string, set RelevanceSet, opts Options) (float64, error) {
	b, err := Explain(results, set, opts)
	if err != nil {
		return 0, err
	}
	return b.Normalized, nil
}

// PNRDCGL is NRDCGL floored at 0.
func PNRDCGL(results []string, set RelevanceSet, opts Options) (float64, error) {
	b, err := Explain(results, set, opts)
	if err != nil {
		return 0, err
	}
	return b.Positive(), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sentinelItems(set RelevanceSet, punishMax bool) map[string]bool {
	if !punishMax || len(set) == 0 {
		return nil
	}
	maxValue := set.Max()
	sentinels := make(map[string]bool)
	for item, v := range set {
		if v == maxValue {
			sentinels[item] = true
		}
	}
	return sentinels
}
