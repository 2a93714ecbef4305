package patterns

import (
	"sort"
	"strings"

	"github.com/harun/sdkbridge/pkg/discovery"
)

// CRUD is an operation class
type CRUD string

const (
	Create CRUD = "create"
	Read   CRUD = "read"
	Update CRUD = "update"
	Delete CRUD = "delete"
)

// crudOrder is the order classification is attempted in
var crudOrder = []CRUD{Create, Read, Update, Delete}

var (
	crudLexicons = map[CRUD]lexicon{
		Create: newLexicon("create", "add", "new", "make", "build", "generate", "post", "insert", "upload"),
		Read:   newLexicon("get", "list", "find", "search", "fetch", "retrieve", "show", "view", "read", "describe", "download"),
		Update: newLexicon("update", "edit", "modify", "change", "set", "patch", "put", "replace", "rename"),
		Delete: newLexicon("delete", "remove", "destroy", "drop", "clear", "purge"),
	}

	authLexicon = newLexicon(
		"login", "logout", "auth", "authenticate", "authorize", "token", "credential", "credentials",
		"key", "secret", "oauth", "bearer", "jwt", "session", "signin", "signup", "password",
	)

	resourceLexicon = newLexicon(
		"user", "repo", "issue", "pull", "comment", "file", "branch", "commit", "release",
		"tag", "org", "team", "project", "wiki", "request", "response", "session", "connection",
		"client", "bucket", "key", "pod", "node", "job", "task", "item",
	)

	genericTerms = newLexicon("method", "function", "object", "class", "module", "self", "args", "kwargs", "arg")

	genericOwners = newLexicon("session", "client", "api")

	httpVerbNames = newLexicon("get", "post", "put", "delete", "patch", "head", "options")

	searchLexicon = newLexicon("search", "find", "query", "filter", "lookup")
)

// maxRelated caps related resource names per cluster
const maxRelated = 5

// OpRef identifies an operation inside a report
type OpRef struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Owner string `json:"owner,omitempty"`
}

func refOf(c discovery.Candidate) OpRef {
	return OpRef{Name: c.Name, Path: c.CanonicalPath, Owner: c.OwnerPath}
}

// Cluster is a resource and the operations acting on it
type Cluster struct {
	Name       string           `json:"name"`
	Operations map[CRUD][]OpRef `json:"operations"`
	Auth       []OpRef          `json:"auth,omitempty"`
	Related    []string         `json:"related,omitempty"`
	Owner      string           `json:"owner,omitempty"`
	Size       int              `json:"size"`
}

// Group is a cross-cutting set of operations
type Group struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Kind        string  `json:"kind"`
	Operations  []OpRef `json:"operations"`
}

// Stats summarizes an analysis
type Stats struct {
	Total          int            `json:"total"`
	ByKind         map[string]int `json:"by_kind"`
	OwnersAnalyzed int            `json:"owners_analyzed"`
}

// Report is the output of the recognizer
type Report struct {
	Resources []Cluster          `json:"resources"`
	Groups    []Group            `json:"groups"`
	AuthFlows map[string][]OpRef `json:"auth_flows"`
	Stats     Stats              `json:"statistics"`
}

// Resource returns the named cluster
func (r *Report) Resource(name string) (Cluster, bool) {
	for _, c := range r.Resources {
		if c.Name == name {
			return c, true
		}
	}
	return Cluster{}, false
}

// Classify returns the CRUD class of an operation name, if any
func Classify(name string) (CRUD, bool) {
	tokens := Tokenize(name)
	for _, kind := range crudOrder {
		if crudLexicons[kind].hasAny(tokens) {
			return kind, true
		}
	}
	return "", false
}

// IsAuth reports whether an operation name is authentication related
func IsAuth(name string) bool {
	return authLexicon.hasAny(Tokenize(name)) || strings.Contains(strings.ToLower(name), "oauth")
}

// Analyze clusters candidates into resources, groups and auth flows.
// Output depends only on the candidates and their order.
func Analyze(cands []discovery.Candidate) *Report {
	resources := resourceCandidates(cands)
	assigned, order := assign(cands, resources)

	report := &Report{
		AuthFlows: authFlows(cands),
		Groups:    groups(cands),
		Stats:     stats(cands),
	}

	for _, name := range order {
		members := assigned[name]
		if len(members) < 2 {
			continue
		}
		report.Resources = append(report.Resources, buildCluster(name, members, resources))
	}
	sort.SliceStable(report.Resources, func(i, j int) bool {
		return report.Resources[i].Name < report.Resources[j].Name
	})
	return report
}

// resourceCandidates collects resource names from member tokens and owner
// path segments, sorted for stable matching
func resourceCandidates(cands []discovery.Candidate) []string {
	set := make(map[string]bool)
	for _, c := range cands {
		for _, tok := range Tokenize(c.Name) {
			if hasDigit(tok) {
				continue
			}
			if resourceLexicon[tok] || len(tok) > 4 {
				set[tok] = true
			}
		}
		if c.OwnerPath == "" {
			continue
		}
		for _, seg := range strings.Split(c.OwnerPath, ".") {
			clean := lettersOnly(seg)
			if len(clean) > 3 {
				set[clean] = true
			}
		}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		if !genericTerms[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// assign maps each candidate to its best resource. order lists resources
// in first-assignment order.
func assign(cands []discovery.Candidate, resources []string) (map[string][]discovery.Candidate, []string) {
	assigned := make(map[string][]discovery.Candidate)
	var order []string

	add := func(name string, c discovery.Candidate) {
		if _, ok := assigned[name]; !ok {
			order = append(order, name)
		}
		assigned[name] = append(assigned[name], c)
	}

	for _, c := range cands {
		member := strings.ToLower(c.Name)
		owner := strings.ToLower(c.OwnerPath)

		best := ""
		for _, res := range resources {
			if !matches(res, member, owner) {
				continue
			}
			if len(res) > len(best) {
				best = res
			}
		}

		switch {
		case best != "":
			add(best, c)
		case c.OwnerPath != "":
			ownerName := strings.ToLower(c.OwnerName())
			if !genericOwners[ownerName] {
				add(ownerName, c)
			}
		}
	}
	return assigned, order
}

func matches(res, member, owner string) bool {
	if strings.Contains(member, res) || (owner != "" && strings.Contains(owner, res)) {
		return true
	}
	if singular := strings.TrimSuffix(res, "s"); singular != res && singular != "" && strings.Contains(member, singular) {
		return true
	}
	return strings.Contains(member, res+"s")
}

func buildCluster(name string, members []discovery.Candidate, resources []string) Cluster {
	cl := Cluster{
		Name:       name,
		Operations: make(map[CRUD][]OpRef),
		Size:       len(members),
	}

	owners := make(map[string]int)
	var ownerOrder []string
	for _, c := range members {
		if kind, ok := Classify(c.Name); ok {
			cl.Operations[kind] = append(cl.Operations[kind], refOf(c))
		}
		if IsAuth(c.Name) {
			cl.Auth = append(cl.Auth, refOf(c))
		}
		if c.OwnerPath != "" {
			if owners[c.OwnerPath] == 0 {
				ownerOrder = append(ownerOrder, c.OwnerPath)
			}
			owners[c.OwnerPath]++
		}
	}

	for _, o := range ownerOrder {
		if owners[o] > owners[cl.Owner] {
			cl.Owner = o
		}
	}

	for _, other := range resources {
		if len(cl.Related) >= maxRelated {
			break
		}
		if other == name {
			continue
		}
		diff := len(name) - len(other)
		if strings.Contains(other, name) || strings.Contains(name, other) || (diff >= -2 && diff <= 2) {
			cl.Related = append(cl.Related, other)
		}
	}
	return cl
}

func groups(cands []discovery.Candidate) []Group {
	var http, auth, search []OpRef
	for _, c := range cands {
		if httpVerbNames[strings.ToLower(c.Name)] {
			http = append(http, refOf(c))
		}
		if IsAuth(c.Name) {
			auth = append(auth, refOf(c))
		}
		if searchLexicon.hasAny(Tokenize(c.Name)) {
			search = append(search, refOf(c))
		}
	}

	var out []Group
	if len(http) > 0 {
		out = append(out, Group{Name: "http_requests", Description: "HTTP request methods", Kind: "http", Operations: http})
	}
	if len(auth) > 0 {
		out = append(out, Group{Name: "authentication", Description: "Authentication and authorization methods", Kind: "auth", Operations: auth})
	}
	if len(search) > 0 {
		out = append(out, Group{Name: "search_query", Description: "Search and query methods", Kind: "search", Operations: search})
	}
	return out
}

// Auth flow kinds
const (
	FlowToken   = "token_based"
	FlowSession = "session_based"
	FlowOAuth   = "oauth"
	FlowKey     = "key_based"
)

func authFlows(cands []discovery.Candidate) map[string][]OpRef {
	flows := make(map[string][]OpRef)
	for _, c := range cands {
		if !IsAuth(c.Name) {
			continue
		}
		lower := strings.ToLower(c.Name)
		switch {
		case containsAny(lower, "token", "bearer", "jwt"):
			flows[FlowToken] = append(flows[FlowToken], refOf(c))
		case containsAny(lower, "session", "login", "signin"):
			flows[FlowSession] = append(flows[FlowSession], refOf(c))
		case containsAny(lower, "oauth", "authorize"):
			flows[FlowOAuth] = append(flows[FlowOAuth], refOf(c))
		case containsAny(lower, "key", "secret", "credential"):
			flows[FlowKey] = append(flows[FlowKey], refOf(c))
		}
	}
	return flows
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func stats(cands []discovery.Candidate) Stats {
	st := Stats{Total: len(cands), ByKind: make(map[string]int)}
	owners := make(map[string]bool)
	for _, c := range cands {
		if c.OwnerPath != "" {
			owners[c.OwnerPath] = true
		}
		switch kind, ok := Classify(c.Name); {
		case IsAuth(c.Name):
			st.ByKind["authentication"]++
		case ok:
			st.ByKind[string(kind)]++
		default:
			st.ByKind["other"]++
		}
	}
	st.OwnersAnalyzed = len(owners)
	return st
}
