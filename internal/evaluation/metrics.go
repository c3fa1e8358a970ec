package evaluation

import (
	"math"
	"sort"

	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// Grades returns the graded relevance of each returned item on the "larger is
// better" scale. Unjudged items, repeats and, with punishMax, items carrying
// the raw maximum grade 0.
func Grades(results []string, set radicugloss.RelevanceSet, invert, punishMax bool) []float64 {
	eligible := eligibleSet(set, invert, punishMax)
	grades := make([]float64, len(results))
	seen := make(map[string]bool, len(results))
	for i, item := range results {
		if seen[item] {
			continue
		}
		seen[item] = true
		grades[i] = eligible[item]
	}
	return grades
}

// IdealGrades returns every positive grade of the set, best first.
func IdealGrades(set radicugloss.RelevanceSet, invert, punishMax bool) []float64 {
	eligible := eligibleSet(set, invert, punishMax)
	ideal := make([]float64, 0, len(eligible))
	for _, g := range eligible {
		if g > 0 {
			ideal = append(ideal, g)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	return ideal
}

func eligibleSet(set radicugloss.RelevanceSet, invert, punishMax bool) radicugloss.RelevanceSet {
	normalized := radicugloss.Normalize(set, invert)
	if !punishMax || len(set) == 0 {
		return normalized
	}
	maxValue := set.Max()
	for item, v := range set {
		if v == maxValue {
			delete(normalized, item)
		}
	}
	return normalized
}

func dcg(grades []float64, k int) float64 {
	k = min(k, len(grades))
	total := 0.0
	for i := 0; i < k; i++ {
		total += (math.Pow(2, grades[i]) - 1) / math.Log2(float64(i+2))
	}
	return total
}

// NDCG calculates Normalized Discounted Cumulative Gain at K
func NDCG(grades, ideal []float64, k int) float64 {
	if k <= 0 {
		return 0
	}
	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg(grades, k) / idcg
}

// Recall calculates Recall at K
func Recall(grades []float64, k, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	return float64(relevantIn(grades, k)) / float64(totalRelevant)
}

// Precision calculates Precision at K
func Precision(grades []float64, k int) float64 {
	k = min(k, len(grades))
	if k <= 0 {
		return 0
	}
	return float64(relevantIn(grades, k)) / float64(k)
}

func relevantIn(grades []float64, k int) int {
	k = min(k, len(grades))
	n := 0
	for i := 0; i < k; i++ {
		if grades[i] > 0 {
			n++
		}
	}
	return n
}

// MRR calculates the reciprocal rank of the first relevant item.
func MRR(grades []float64) float64 {
	for i, g := range grades {
		if g > 0 {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision over all totalRelevant items,
// so relevant items never returned count as zero precision.
func AveragePrecision(grades []float64, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}

	relevant := 0
	sumPrecision := 0.0
	for i, g := range grades {
		if g > 0 {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}
	return sumPrecision / float64(totalRelevant)
}
