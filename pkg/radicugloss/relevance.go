// Package radicugloss computes Rank Discounted Cumulative Gain and Loss (RDCGL), a
// DCG variant that also charges for false positives, false negatives and items
// placed away from their true rank, and its normalized forms.
//
// All functions are pure and safe for concurrent use.
package radicugloss

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is wrapped by every input validation failure.
var ErrInvalidArgument = errors.New("invalid argument")

// MaxRelevance is the largest normalized relevance whose gain 2^t - 1 is still a
// finite float64.
const MaxRelevance = 1023

// RelevanceSet maps an item identifier to its true relevance (or true rank, when
// the caller uses the "1 is best" convention and scores with Invert).
type RelevanceSet map[string]float64

// Lookup returns the relevance of item and whether the item is judged at all.
// An explicit relevance of 0 is reported as present.
func (s RelevanceSet) Lookup(item string) (float64, bool) {
	v, ok := s[item]
	return v, ok
}

// Max returns the largest raw value in the set, or 0 for an empty set.
func (s RelevanceSet) Max() float64 {
	maxValue := 0.0
	first := true
	for _, v := range s {
		if first || v > maxValue {
			maxValue = v
			first = false
		}
	}
	return maxValue
}

// Validate rejects values the gain formula cannot use.
func (s RelevanceSet) Validate() error {
	for item, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: relevance of %q is not a finite number", ErrInvalidArgument, item)
		}
		if v < 0 {
			return fmt.Errorf("%w: relevance of %q is negative (%g)", ErrInvalidArgument, item, v)
		}
	}
	return nil
}

// checkRange rejects normalized relevance values whose gain would overflow.
func checkRange(normalized RelevanceSet) error {
	for item, v := range normalized {
		if v > MaxRelevance {
			return fmt.Errorf("%w: relevance of %q normalizes to %g, above the limit of %d",
				ErrInvalidArgument, item, v, MaxRelevance)
		}
	}
	return nil
}

// InvertRank flips a "1 is best" rank into a "larger is better" relevance.
// Ranks are 1-indexed; the best rank maps to maxRank and maxRank maps to 1.
func InvertRank(rank, maxRank float64) float64 {
	return maxRank + 1 - rank
}

// Normalize returns a copy of s where larger always means more relevant.
func Normalize(s RelevanceSet, invert bool) RelevanceSet {
	out := make(RelevanceSet, len(s))
	if !invert {
		for item, v := range s {
			out[item] = v
		}
		return out
	}

	maxRank := s.Max()
	for item, v := range s {
		out[item] = InvertRank(v, maxRank)
	}
	return out
}
