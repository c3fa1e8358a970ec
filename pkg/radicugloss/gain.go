package radicugloss

import "math"

// Gain is the discounted exponential gain of relevance t at assumed rank a:
// (2^t - 1) / log2(a + 1). Ranks below 1 earn nothing.
func Gain(t float64, a int) float64 {
	if a < 1 {
		return 0
	}
	return (math.Pow(2, t) - 1) / math.Log2(float64(a)+1)
}

// GainTable maps an item to its net gain (gain minus penalty) in one scoring.
type GainTable map[string]float64

// Total sums the table.
func (g GainTable) Total() float64 {
	total := 0.0
	for _, v := range g {
		total += v
	}
	return total
}

// opportunity is what the ideal ordering earns at position. Past the end of the
// ideal ordering its least relevant item stands in, still discounted at position.
// A slot whose ideal occupant earns nothing is priced at the least positive
// relevance, and never below Gain(1, position), so every intrusion costs.
func opportunity(ideal []string, normalized RelevanceSet, position int) float64 {
	if len(ideal) == 0 || position < 1 {
		return 0
	}
	idx := min(position, len(ideal)) - 1
	v := normalized[ideal[idx]]
	if v <= 0 {
		v = leastPositive(ideal, normalized)
	}
	return max(Gain(v, position), Gain(1, position))
}

// leastPositive returns the smallest relevance above 0 in the ideal ordering,
// or 0 when there is none. ideal is sorted by descending relevance.
func leastPositive(ideal []string, normalized RelevanceSet) float64 {
	for i := len(ideal) - 1; i >= 0; i-- {
		if v := normalized[ideal[i]]; v > 0 {
			return v
		}
	}
	return 0
}

// idealGain sums the gain of the first k items of the ideal ordering.
func idealGain(ideal []string, normalized RelevanceSet, k int) float64 {
	total := 0.0
	for i := 0; i < min(k, len(ideal)); i++ {
		total += Gain(normalized[ideal[i]], i+1)
	}
	return total
}
