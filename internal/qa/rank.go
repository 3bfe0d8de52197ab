package qa

import (
	"sort"
	"strings"

	"github.com/ad-itya07/Dionysus/internal/store"
)

// Result caps for ranked records.
const (
	SpecificLimit = 15
	OverviewLimit = 30
)

// Relevance weights.
const (
	readmeBonus = 100
	fileNameHit = 10
	sourceHit   = 5
	summaryHit  = 3
)

// Scored is a record with its relevance to a set of keywords.
type Scored struct {
	Record store.CodeRecord
	Score  int
}

// Score computes a record's relevance. README files get a fixed bonus and
// count as matching even without any keyword hit.
func Score(r store.CodeRecord, keywords []string) (score int, matched bool) {
	name := strings.ToLower(r.FileName)
	source := strings.ToLower(r.SourceCode)
	summary := strings.ToLower(r.Summary)

	if strings.Contains(name, "readme") {
		score += readmeBonus
		matched = true
	}
	for _, k := range keywords {
		if strings.Contains(name, k) {
			score += fileNameHit
			matched = true
		}
		if strings.Contains(source, k) {
			score += sourceHit
			matched = true
		}
		if strings.Contains(summary, k) {
			score += summaryHit
			matched = true
		}
	}
	return score, matched
}

// Rank scores records against keywords, drops those that match nothing
// and returns the rest by descending score, capped at SpecificLimit or
// OverviewLimit. Ties keep their stored order. Without keywords the first
// records are returned unscored.
func Rank(records []store.CodeRecord, keywords []string, overview bool) []Scored {
	limit := SpecificLimit
	if overview {
		limit = OverviewLimit
	}

	var out []Scored
	if len(keywords) == 0 {
		for _, r := range records {
			if len(out) == limit {
				break
			}
			out = append(out, Scored{Record: r})
		}
		return out
	}

	for _, r := range records {
		if score, ok := Score(r, keywords); ok {
			out = append(out, Scored{Record: r, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
