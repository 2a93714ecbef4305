package discovery

import (
	"strings"

	"github.com/harun/sdkbridge/pkg/rules"
)

// Score weights
const (
	weightImportantOwner = 10
	weightOwnerBoost     = 5
	weightOwnerPenalty   = -5
	weightMemberBoost    = 8
	weightMemberPenalty  = -6
	weightVerbPrefix     = 3
	weightDocHint        = 5
	weightPrivateName    = -2
	weightPrivateModule  = -8
)

var httpVerbs = []string{"GET", "POST", "PUT", "DELETE"}

// HasCallHint reports whether doc text advertises a remote call: an explicit
// ":calls:" marker or an HTTP verb in its first 100 characters
func HasCallHint(doc string) bool {
	if doc == "" {
		return false
	}
	if strings.Contains(doc, ":calls:") {
		return true
	}
	head := []rune(doc)
	if len(head) > 100 {
		head = head[:100]
	}
	prefix := string(head)
	for _, v := range httpVerbs {
		if strings.Contains(prefix, v) {
			return true
		}
	}
	return false
}

// Score computes a candidate's priority. It depends only on its inputs.
func Score(c Candidate, rs *rules.RuleSet, importantOwners map[string]bool) float64 {
	var score float64

	if c.OwnerPath != "" {
		if importantOwners[c.OwnerID] || rs.ImportantOwners.Match(c.OwnerName()) {
			score += weightImportantOwner
		}
		if rs.BoostOwners.Match(c.OwnerPath) {
			score += weightOwnerBoost
		}
		if rs.PenalizeOwners.Match(c.OwnerPath) {
			score += weightOwnerPenalty
		}
	}

	if rs.BoostMembers.Match(c.Name) {
		score += weightMemberBoost
	}
	if rs.PenalizeMembers.Match(c.Name) {
		score += weightMemberPenalty
	}

	if rs.HasActionVerbPrefix(c.Name) {
		score += weightVerbPrefix
	}
	if HasCallHint(c.Doc) {
		score += weightDocHint
	}
	if IsLowVisibilityName(c.Name) {
		score += weightPrivateName
	}
	if HasLowVisibilitySegment(c.ModulePath) {
		score += weightPrivateModule
	}

	return score
}

// ScoreAll writes scores into candidates in place
func ScoreAll(cands []Candidate, rs *rules.RuleSet, importantOwners map[string]bool) {
	for i := range cands {
		cands[i].Score = Score(cands[i], rs, importantOwners)
	}
}
