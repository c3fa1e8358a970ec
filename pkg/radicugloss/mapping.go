package radicugloss

import "sort"

// IdealRange is the 1-indexed span of ideal positions shared by every item with
// the same relevance.
type IdealRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether position falls inside the range.
func (r IdealRange) Contains(position int) bool {
	return position >= r.Start && position <= r.End
}

// Size is the number of items sharing the range.
func (r IdealRange) Size() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// IdealOrdering returns the items of a normalized set sorted by descending
// relevance. Equal relevance is ordered by item ID so the result is stable.
func IdealOrdering(normalized RelevanceSet) []string {
	items := make([]string, 0, len(normalized))
	for item := range normalized {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		vi, vj := normalized[items[i]], normalized[items[j]]
		if vi != vj {
			return vi > vj
		}
		return items[i] < items[j]
	})
	return items
}

// BuildIdealRanges groups the ideal ordering of a normalized set into relevance
// tiers.
//
//	{a: 3, b: 2, c: 2, d: 1} -> {3: [1,1], 2: [2,3], 1: [4,4]}
func BuildIdealRanges(normalized RelevanceSet) map[float64]IdealRange {
	ranges := make(map[float64]IdealRange)
	for i, item := range IdealOrdering(normalized) {
		v := normalized[item]
		r, ok := ranges[v]
		if !ok {
			r = IdealRange{Start: i + 1}
		}
		r.End = i + 1
		ranges[v] = r
	}
	return ranges
}

// AssumedRank describes one considered position of a result list.
type AssumedRank struct {
	Item     string `json:"item"`
	Position int    `json:"position"`

	// Rank is the assumed rank: the observed position, never corrected.
	Rank int `json:"assumed_rank"`

	// Relevance is the normalized true relevance; zero when Known is false.
	Relevance float64 `json:"relevance"`
	Known     bool    `json:"known"`

	// Tier is where items of this relevance sit in the ideal ordering.
	Tier IdealRange `json:"tier"`

	// Inconsistent is set when the item is outside its tier.
	Inconsistent bool `json:"inconsistent,omitempty"`
	Tied         bool `json:"tied,omitempty"`
	Duplicate    bool `json:"duplicate,omitempty"`
}

// FalsePositive reports whether the position earns nothing and is charged as an
// intrusion.
func (a AssumedRank) FalsePositive() bool {
	return !a.Known || a.Duplicate
}

// AssumedRankMapping holds one entry per considered position, in list order.
type AssumedRankMapping struct {
	Entries []AssumedRank
	first   map[string]int
}

// Contains reports whether item was among the considered results.
func (m AssumedRankMapping) Contains(item string) bool {
	_, ok := m.first[item]
	return ok
}

// Len returns the number of considered positions.
func (m AssumedRankMapping) Len() int {
	return len(m.Entries)
}

// BuildAssumedRankMapping assigns assumed ranks to already-truncated results
// against a normalized relevance set. Items missing from the set, and repeats of
// an item already seen, are flagged as false positives.
func BuildAssumedRankMapping(results []string, normalized RelevanceSet) AssumedRankMapping {
	tiers := BuildIdealRanges(normalized)
	m := AssumedRankMapping{
		Entries: make([]AssumedRank, 0, len(results)),
		first:   make(map[string]int, len(results)),
	}

	for i, item := range results {
		pos := i + 1
		entry := AssumedRank{
			Item:     item,
			Position: pos,
			Rank:     pos,
		}

		if _, seen := m.first[item]; seen {
			entry.Duplicate = true
		} else {
			m.first[item] = i
		}

		if v, ok := normalized.Lookup(item); ok {
			tier := tiers[v]
			entry.Known = true
			entry.Relevance = v
			entry.Tier = tier
			entry.Tied = tier.Size() > 1
			entry.Inconsistent = !tier.Contains(pos)
		}

		m.Entries = append(m.Entries, entry)
	}

	return m
}
