package discovery

// Deduplicate keeps one candidate per (owner equivalence class, name,
// parameter signature). With preferPublic set, candidates reached through a
// private owner path are first rewritten to a public alias of the same
// owner, and within a group a public module path beats a private one.
// Score decides next and discovery order last. The survivors keep their
// relative input order.
func Deduplicate(cands []Candidate, aliases AliasIndex, preferPublic bool) []Candidate {
	work := make([]Candidate, len(cands))
	copy(work, cands)

	if preferPublic {
		for i := range work {
			rewriteToPublicAlias(&work[i], aliases)
		}
	}

	winners := make(map[string]int, len(work))
	keys := make([]string, len(work))
	for i, c := range work {
		key := groupKey(c, preferPublic)
		keys[i] = key

		cur, ok := winners[key]
		if !ok || better(c, work[cur], preferPublic) {
			winners[key] = i
		}
	}

	out := make([]Candidate, 0, len(winners))
	for i, c := range work {
		if winners[keys[i]] == i {
			out = append(out, c)
		}
	}
	return out
}

func rewriteToPublicAlias(c *Candidate, aliases AliasIndex) {
	if c.OwnerPath == "" || !HasLowVisibilitySegment(c.OwnerPath) {
		return
	}
	alias, ok := aliases.PublicAlias(c.OwnerID)
	if !ok {
		return
	}
	c.OwnerPath = alias
	c.CanonicalPath = alias + "." + c.Name
	c.ModulePath = parentPath(alias)
}

// OwnerClass returns the owner equivalence class of a candidate
func OwnerClass(c Candidate, preferPublic bool) string {
	scope := c.OwnerPath
	if scope == "" {
		scope = c.ModulePath
	}
	if preferPublic {
		return PublicPath(scope)
	}
	return scope
}

func groupKey(c Candidate, preferPublic bool) string {
	return OwnerClass(c, preferPublic) + "\x00" + c.Name + "\x00" + c.signature()
}

func better(a, b Candidate, preferPublic bool) bool {
	if preferPublic {
		aPub := !HasLowVisibilitySegment(a.ModulePath)
		bPub := !HasLowVisibilitySegment(b.ModulePath)
		if aPub != bPub {
			return aPub
		}
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Order < b.Order
}
