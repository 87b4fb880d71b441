package resolution

import (
	"sort"
	"strings"

	"github.com/yungbote/videograph-backend/internal/data/graph"
	"github.com/yungbote/videograph-backend/internal/domain"
)

const (
	defaultMaxCandidates = 15
	defaultFullSetLimit  = 200

	// Candidates scoring below this are noise; dropping them keeps judge
	// prompts small without risking real matches (the heuristic is a cost
	// bound, not a correctness gate).
	minCandidateScore = 0.2
)

// candidateSet is the matcher's verdict for one new entity: either an exact
// case-insensitive hit (resolved without a judge call) or a bounded list of
// possibly-equivalent existing entities for the judge to adjudicate.
type candidateSet struct {
	entity     domain.Entity
	exact      string // canonical spelling of an exact case-insensitive match
	candidates []graph.EntityRef
}

// matchCandidates bounds the judge's workload. Small populations are passed
// through whole; larger ones are filtered by a cheap string heuristic
// (initialism expansion, token containment, prefix overlap) keeping top-N.
func matchCandidates(e domain.Entity, existing []graph.EntityRef, maxCandidates, fullSetLimit int) candidateSet {
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	if fullSetLimit <= 0 {
		fullSetLimit = defaultFullSetLimit
	}

	out := candidateSet{entity: e}
	folded := foldName(e.Name)
	for _, ref := range existing {
		if foldName(ref.Name) == folded {
			out.exact = ref.Name
			return out
		}
	}

	if len(existing) <= fullSetLimit {
		out.candidates = append(out.candidates, existing...)
		return out
	}

	type scored struct {
		ref   graph.EntityRef
		score float64
	}
	ranked := make([]scored, 0, len(existing))
	for _, ref := range existing {
		if sc := candidateScore(e.Name, ref.Name); sc >= minCandidateScore {
			ranked = append(ranked, scored{ref: ref, score: sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	for _, r := range ranked {
		out.candidates = append(out.candidates, r.ref)
	}
	return out
}

func candidateScore(newName, existingName string) float64 {
	a := foldName(newName)
	b := foldName(existingName)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if a == initialism(b) || b == initialism(a) {
		return 0.9
	}
	if tokensContained(a, b) || tokensContained(b, a) {
		return 0.6
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.5
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return 0.4 * float64(commonPrefixLen(a, b)) / float64(longer)
}

// initialism collapses a multi-word name to its initials, punctuation
// stripped: "Artificial Intelligence" -> "ai", "A.I." -> "ai".
func initialism(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})
	if len(fields) < 2 {
		return strings.ReplaceAll(name, ".", "")
	}
	var b strings.Builder
	for _, f := range fields {
		r := []rune(f)
		if len(r) > 0 {
			b.WriteRune(r[0])
		}
	}
	return b.String()
}

func tokensContained(inner, outer string) bool {
	innerTokens := strings.Fields(inner)
	if len(innerTokens) == 0 {
		return false
	}
	outerTokens := map[string]bool{}
	for _, t := range strings.Fields(outer) {
		outerTokens[t] = true
	}
	if len(innerTokens) >= len(outerTokens) {
		return false
	}
	for _, t := range innerTokens {
		if !outerTokens[t] {
			return false
		}
	}
	return true
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
