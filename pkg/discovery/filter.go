package discovery

import (
	"sort"
	"strings"

	"github.com/harun/sdkbridge/pkg/rules"
)

// helperVerbs keep a private-looking helper out of the noise bucket
var helperVerbs = []string{"get", "set", "create", "delete", "update"}

// Selection thresholds
const (
	veryLargeThreshold = 1000
	largeThreshold     = 500
)

// IsNoise reports whether a candidate should be dropped. Anchors are
// never noise.
func IsNoise(c Candidate, rs *rules.RuleSet) bool {
	if rs.IsAnchor(c.Name, c.CanonicalPath) {
		return false
	}
	if rs.ExcludeNames.Match(c.Name) {
		return true
	}
	if IsDunder(c.Name) && c.Name != rs.ConstructorMarker {
		return true
	}
	if IsLowVisibilityName(c.Name) && !containsAny(strings.ToLower(c.Name), helperVerbs) {
		return true
	}
	if rs.IsContainerMember(c.Name) && !HasCallHint(c.Doc) {
		return true
	}
	return c.Score < rs.ScoreFloor
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Select drops noise, orders survivors by descending score with discovery
// order breaking ties, then caps the result by size tier
func Select(cands []Candidate, rs *rules.RuleSet) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !IsNoise(c, rs) {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Order < out[j].Order
	})

	limit := TierLimit(len(out), rs.Limits.P2)
	return out[:limit]
}

// TierLimit returns how many of n ranked candidates to keep
func TierLimit(n, p2 int) int {
	var limit int
	switch {
	case n > veryLargeThreshold:
		limit = p2 / 10
		if limit < 1 {
			limit = 1
		}
	case n > largeThreshold:
		limit = p2
	default:
		limit = n
	}
	if limit > n {
		limit = n
	}
	return limit
}
