package toolgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/sdkbridge/pkg/discovery"
	"github.com/harun/sdkbridge/pkg/patterns"
	"github.com/harun/sdkbridge/pkg/rules"
)

// maxDescription is the longest doc line used verbatim as a description
const maxDescription = 200

// docScanLimit bounds how much documentation is scanned for flags
const docScanLimit = 500

// ownerNoise are owner segments too generic to name a tool
var ownerNoise = map[string]bool{"client": true, "api": true}

var (
	paginatedReturns   = []string{"page", "pager", "iterator", "iterable", "generator", "iter.seq", "cursor"}
	longRunningReturns = []string{"poller", "operation", "future"}
)

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// Flags are behavioral hints attached to a tool
type Flags struct {
	Destructive bool `json:"destructive,omitempty"`
	Confirm     bool `json:"requires_confirmation,omitempty"`
	Paginated   bool `json:"paginated,omitempty"`
	LongRunning bool `json:"long_running,omitempty"`
	Async       bool `json:"async,omitempty"`
	Dangerous   bool `json:"dangerous,omitempty"`
}

// Descriptor is one generated tool
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Reference   string         `json:"reference"`
	Flags       Flags          `json:"flags"`
	Group       string         `json:"group,omitempty"`
}

// Group lists tools sharing an owner
type Group struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

// Generator turns candidates into tool descriptors for one system
type Generator struct {
	system string
	rules  *rules.RuleSet
	logger zerolog.Logger
}

// NewGenerator creates a generator
func NewGenerator(rs *rules.RuleSet, logger zerolog.Logger) *Generator {
	return &Generator{
		system: sanitize(rs.System),
		rules:  rs,
		logger: logger.With().Str("component", "toolgen").Logger(),
	}
}

// Generate builds one descriptor per candidate, in input order. Names are
// unique within the returned slice.
func (g *Generator) Generate(cands []discovery.Candidate) []Descriptor {
	used := make(map[string]bool, len(cands))
	out := make([]Descriptor, 0, len(cands))

	for _, c := range cands {
		token := g.ownerToken(c)
		name := g.uniqueName(g.baseName(token, c.Name), c, used)
		used[name] = true

		out = append(out, Descriptor{
			Name:        name,
			Description: Description(c),
			InputSchema: g.schema(c),
			Reference:   c.CanonicalPath,
			Flags:       DetectFlags(c, g.rules),
			Group:       g.groupName(token),
		})
	}
	return out
}

// Groups collects descriptors by group in first-seen order
func (g *Generator) Groups(descs []Descriptor) []Group {
	index := make(map[string]int)
	var out []Group
	for _, d := range descs {
		if d.Group == "" {
			continue
		}
		i, ok := index[d.Group]
		if !ok {
			i = len(out)
			index[d.Group] = i
			out = append(out, Group{Name: d.Group, Description: g.groupDescription(d.Group)})
		}
		out[i].Tools = append(out[i].Tools, d.Name)
	}
	return out
}

func (g *Generator) groupName(token string) string {
	if token == "" || token == g.system {
		return joinName(g.system, "operations")
	}
	return joinName(g.system, token, "operations")
}

func (g *Generator) groupDescription(group string) string {
	subject := strings.TrimSuffix(strings.TrimPrefix(group, g.system+"_"), "operations")
	subject = strings.TrimSuffix(subject, "_")
	if subject == "" {
		return fmt.Sprintf("Operations for %s", g.system)
	}
	return fmt.Sprintf("%s operations for %s", strings.ReplaceAll(subject, "_", " "), g.system)
}

// ownerToken names the owner by its last meaningful segment
func (g *Generator) ownerToken(c discovery.Candidate) string {
	if c.OwnerPath == "" {
		return g.system
	}
	segs := strings.Split(c.OwnerPath, ".")
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		if discovery.IsLowVisibilitySegment(seg) || ownerNoise[strings.ToLower(seg)] {
			continue
		}
		if token := sanitize(patterns.SnakeCase(seg)); token != "" {
			return token
		}
	}
	return g.system
}

func (g *Generator) baseName(token, member string) string {
	if token == g.system {
		token = ""
	}
	m := patterns.SnakeCase(member)
	if m == "" {
		m = sanitize(member)
	}
	return joinName(g.system, token, m)
}

func (g *Generator) uniqueName(base string, c discovery.Candidate, used map[string]bool) string {
	if !used[base] {
		return base
	}
	scope := c.OwnerPath
	if scope == "" {
		scope = c.ModulePath
	}
	name := joinName(base, sanitize(scope))
	for n := 2; used[name]; n++ {
		name = joinName(base, sanitize(scope), fmt.Sprint(n))
	}
	g.logger.Debug().
		Str("base", base).
		Str("name", name).
		Str("reference", c.CanonicalPath).
		Msg("Tool name collision resolved")
	return name
}

// schema builds and compiles the input schema. A schema that fails to
// compile is replaced by an open object.
func (g *Generator) schema(c discovery.Candidate) map[string]any {
	schema := InputSchema(c.Params, g.rules)
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		g.logger.Warn().
			Err(err).
			Str("reference", c.CanonicalPath).
			Msg("Generated schema rejected, using open object")
		return openSchema()
	}
	return schema
}

// Description returns the first doc line when short enough, otherwise a
// phrase built from the member name
func Description(c discovery.Candidate) string {
	line := strings.TrimSpace(c.Doc)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line != "" && len([]rune(line)) < maxDescription {
		return line
	}
	words := patterns.Tokenize(c.Name)
	if len(words) == 0 {
		return c.Name + " operation"
	}
	return strings.Join(words, " ") + " operation"
}

// DetectFlags derives behavioral hints from the member name, return
// descriptor and documentation
func DetectFlags(c discovery.Candidate, rs *rules.RuleSet) Flags {
	var f Flags

	tokens := patterns.Tokenize(c.Name)
	for _, tok := range tokens {
		for _, v := range rs.DestructiveVerbs {
			if tok == v {
				f.Destructive = true
				f.Confirm = true
			}
		}
	}

	ret := strings.ToLower(c.Returns)
	if containsAny(ret, paginatedReturns) {
		f.Paginated = true
	}
	if containsAny(ret, longRunningReturns) {
		f.LongRunning = true
	}

	doc := []rune(strings.ToLower(c.Doc))
	if len(doc) > docScanLimit {
		doc = doc[:docScanLimit]
	}
	text := string(doc)
	if strings.Contains(text, "long-running") || strings.Contains(text, "polling") {
		f.LongRunning = true
	}
	if strings.Contains(text, "paginated") || strings.Contains(text, "iterator") {
		f.Paginated = true
	}
	if strings.Contains(text, "danger") || strings.Contains(text, "caution") {
		f.Dangerous = true
	}

	f.Async = c.Async
	return f
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// sanitize lowercases and replaces every run of non-alphanumerics with one
// underscore
func sanitize(s string) string {
	return strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// joinName joins non-empty parts with single underscores
func joinName(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.Trim(p, "_"); p != "" {
			kept = append(kept, p)
		}
	}
	return sanitize(strings.Join(kept, "_"))
}
