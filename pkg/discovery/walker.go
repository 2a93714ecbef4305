package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
)

// Result is the output of one discovery run
type Result struct {
	Root       string
	Candidates []Candidate
	Aliases    AliasIndex
	// ImportantOwners holds owner ids exposing many public methods
	ImportantOwners map[string]bool
	Namespaces      int
	Owners          int
}

func newResult(root string) *Result {
	return &Result{
		Root:            root,
		Aliases:         make(AliasIndex),
		ImportantOwners: make(map[string]bool),
	}
}

// Walker traverses a namespace graph through a reflection provider
type Walker struct {
	provider reflection.Provider
	rules    *rules.RuleSet
	logger   zerolog.Logger
}

// NewWalker creates a walker
func NewWalker(provider reflection.Provider, rs *rules.RuleSet, logger zerolog.Logger) *Walker {
	return &Walker{
		provider: provider,
		rules:    rs,
		logger:   logger.With().Str("component", "walker").Logger(),
	}
}

// walkItem is a function or the first sighting of an owner
type walkItem struct {
	member     reflection.Member
	modulePath string
	ownerID    string
}

type walkState struct {
	visited map[string]bool
	items   []walkItem
	owners  map[string]reflection.Member
	res     *Result
}

// Walk discovers candidate operations under root. Traversal first indexes
// every owner and the paths reaching it, then extracts each owner once
// under its preferred path. A root that cannot be loaded yields an empty
// result and an error wrapping ErrDiscovery.
func (w *Walker) Walk(ctx context.Context, root string) (*Result, error) {
	res := newResult(root)

	rootMember, err := w.provider.Load(ctx, root)
	if err != nil {
		w.logger.Warn().Err(err).Str("root", root).Msg("Failed to load root")
		return res, fmt.Errorf("%w: %s: %v", ErrDiscovery, root, err)
	}

	st := &walkState{
		visited: map[string]bool{rootMember.ID: true},
		owners:  make(map[string]reflection.Member),
		res:     res,
	}
	w.walkNamespace(ctx, root, 0, st)

	seen := make(map[string]bool)
	for _, item := range st.items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if item.ownerID == "" {
			w.emit(item.member, item.modulePath, seen, res)
			continue
		}
		w.extractOwner(ctx, item.ownerID, st, seen)
	}

	w.logger.Debug().
		Str("root", root).
		Int("namespaces", res.Namespaces).
		Int("owners", res.Owners).
		Int("candidates", len(res.Candidates)).
		Msg("Walk completed")

	return res, nil
}

func (w *Walker) prefixes() []string {
	return w.rules.RootPrefixes
}

// inScope reports whether an origin belongs to one of the root prefixes
func (w *Walker) inScope(origin, root string) bool {
	prefixes := w.prefixes()
	if len(prefixes) == 0 {
		prefixes = []string{root}
	}
	for _, p := range prefixes {
		if origin == p || strings.HasPrefix(origin, p+".") {
			return true
		}
	}
	return false
}

// leadsToScope reports whether a namespace is an ancestor of a root prefix
func (w *Walker) leadsToScope(origin string) bool {
	for _, p := range w.prefixes() {
		if strings.HasPrefix(p, origin+".") {
			return true
		}
	}
	return false
}

func (w *Walker) walkNamespace(ctx context.Context, path string, depth int, st *walkState) {
	if ctx.Err() != nil {
		return
	}
	st.res.Namespaces++

	members, err := w.provider.Members(ctx, path)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", path).Msg("Skipping namespace")
		return
	}

	// Public entries first so owners are first reached through public paths
	sort.SliceStable(members, func(i, j int) bool {
		return !IsLowVisibilitySegment(members[i].Name) && IsLowVisibilitySegment(members[j].Name)
	})

	root := st.res.Root
	for _, m := range members {
		switch m.Kind {
		case reflection.KindNamespace:
			if st.visited[m.ID] || depth+1 > w.rules.MaxDepth {
				continue
			}
			if !w.inScope(m.Origin, root) && !w.leadsToScope(m.Origin) {
				continue
			}
			st.visited[m.ID] = true
			w.walkNamespace(ctx, m.Path, depth+1, st)

		case reflection.KindType, reflection.KindInstance:
			st.res.Aliases.add(m.ID, m.Path)
			if st.visited[m.ID] || !w.inScope(m.Origin, root) {
				continue
			}
			st.visited[m.ID] = true
			st.owners[m.ID] = m
			if m.Methods > w.rules.ImportantMethodThreshold {
				st.res.ImportantOwners[m.ID] = true
			}
			st.items = append(st.items, walkItem{ownerID: m.ID})

		case reflection.KindFunc:
			if !w.inScope(m.Origin, root) {
				continue
			}
			st.items = append(st.items, walkItem{member: m, modulePath: path})
		}
	}
}

func (w *Walker) extractOwner(ctx context.Context, id string, st *walkState, seen map[string]bool) {
	path, ok := st.res.Aliases.Preferred(id)
	if !ok {
		path = st.owners[id].Path
	}
	st.res.Owners++

	members, err := w.provider.Members(ctx, path)
	if err != nil {
		w.logger.Debug().Err(err).Str("owner", path).Msg("Skipping owner")
		return
	}
	for _, m := range members {
		if !m.Kind.IsCallable() {
			continue
		}
		w.emit(m, parentPath(path), seen, st.res)
	}
}

// emit runs the extractor and appends a candidate in discovery order
func (w *Walker) emit(m reflection.Member, modulePath string, seen map[string]bool, res *Result) {
	if seen[m.Path] {
		return
	}
	c, ok := Extract(m, modulePath, w.rules)
	if !ok {
		return
	}
	seen[m.Path] = true
	c.Order = len(res.Candidates)
	res.Candidates = append(res.Candidates, c)
}

// Extract builds a candidate from a callable member. Members without a
// signature or matching an exclude pattern are dropped.
func Extract(m reflection.Member, modulePath string, rs *rules.RuleSet) (Candidate, bool) {
	if m.Signature == nil || !m.Kind.IsCallable() {
		return Candidate{}, false
	}
	if rs.ExcludeNames.Match(m.Name) {
		return Candidate{}, false
	}

	params := make([]reflection.Param, len(m.Signature.Params))
	copy(params, m.Signature.Params)

	return Candidate{
		Name:          m.Name,
		CanonicalPath: m.Path,
		OwnerPath:     m.OwnerPath,
		OwnerID:       m.OwnerID,
		ModulePath:    modulePath,
		Params:        params,
		Returns:       m.Signature.Returns,
		Doc:           strings.TrimSpace(m.Doc),
		Async:         m.Signature.Async,
		Static:        m.Static,
	}, true
}
