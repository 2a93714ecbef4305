package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Construction strategy names, tried in order by the execution bridge
const (
	StrategyNoArgs         = "no_args"
	StrategyEnvCredentials = "env_credentials"
	StrategyConfigFile     = "config_file"
	StrategyAnonymous      = "anonymous"
)

// Patterns is a list of case-insensitive regular expressions
type Patterns []*regexp.Regexp

// Compile builds Patterns from source strings
func Compile(sources []string) (Patterns, error) {
	out := make(Patterns, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", src, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MustCompile is like Compile but panics on an invalid pattern
func MustCompile(sources ...string) Patterns {
	p, err := Compile(sources)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether any pattern matches s
func (p Patterns) Match(s string) bool {
	for _, re := range p {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Sources returns the pattern sources without the case flag
func (p Patterns) Sources() []string {
	out := make([]string, len(p))
	for i, re := range p {
		out[i] = strings.TrimPrefix(re.String(), "(?i)")
	}
	return out
}

// Construction configures how owner instances are built
type Construction struct {
	Strategies    []string
	CredentialEnv []string
	ConfigFiles   []string
}

// PriorityLimits caps the selector. Only P2 drives selection; the rest are
// carried for rule files that set them.
type PriorityLimits struct {
	P1All bool
	P2    int
	P3    int
	P4    int
	P5    int
}

// RuleSet is the per-system configuration consumed by discovery, scoring,
// filtering and generation. Treat it as read-only once built.
type RuleSet struct {
	System string

	RootPrefixes []string
	MaxDepth     int

	ExcludeNames     Patterns
	ImportantOwners  Patterns
	BoostOwners      Patterns
	PenalizeOwners   Patterns
	BoostMembers     Patterns
	PenalizeMembers  Patterns
	ActionVerbs      []string
	DestructiveVerbs []string
	Anchors          []string
	SentinelDefaults []string

	ContainerProtocolMembers []string
	DropContainerMembers     bool
	PreferPublic             bool
	ConstructorMarker        string

	ScoreFloor               float64
	Limits                   PriorityLimits
	ImportantMethodThreshold int

	Construction Construction
}

// Defaults returns the generic heuristics used when no rules are configured
func Defaults() *RuleSet {
	return &RuleSet{
		MaxDepth:        6,
		ImportantOwners: MustCompile(`Client$`, `Api$`, `Operations$`, `Service$`),
		ActionVerbs: []string{
			"get", "list", "create", "update", "delete", "patch",
			"search", "find", "fetch", "add", "remove", "replace",
		},
		DestructiveVerbs: []string{"create", "update", "replace", "patch", "delete", "remove", "destroy", "drop"},
		SentinelDefaults: []string{"NotSet", "UNSET", "Unset"},
		ContainerProtocolMembers: []string{
			"String", "GoString", "Error", "Len", "Less", "Swap",
			"MarshalJSON", "UnmarshalJSON", "MarshalText", "UnmarshalText",
			"keys", "values", "items", "copy", "clear", "pop", "popitem", "setdefault", "fromkeys",
		},
		DropContainerMembers:     true,
		PreferPublic:             true,
		ConstructorMarker:        "__init__",
		ScoreFloor:               -5,
		Limits:                   PriorityLimits{P1All: true, P2: 500, P3: 100, P4: 50, P5: 20},
		ImportantMethodThreshold: 10,
		Construction: Construction{
			Strategies: []string{
				StrategyNoArgs, StrategyEnvCredentials, StrategyConfigFile, StrategyAnonymous,
			},
		},
	}
}

// WithSystem returns a copy of the rule set bound to a system id
func (rs *RuleSet) WithSystem(system string) *RuleSet {
	cp := *rs
	cp.System = system
	return &cp
}

// IsAnchor reports whether a member name or canonical path is anchored
func (rs *RuleSet) IsAnchor(name, path string) bool {
	for _, a := range rs.Anchors {
		if a == name || a == path {
			return true
		}
	}
	return false
}

// IsContainerMember reports whether name belongs to a generic container protocol
func (rs *RuleSet) IsContainerMember(name string) bool {
	if !rs.DropContainerMembers {
		return false
	}
	for _, m := range rs.ContainerProtocolMembers {
		if m == name {
			return true
		}
	}
	return false
}

// IsSentinel reports whether a default's text names a "no value" sentinel
func (rs *RuleSet) IsSentinel(text string) bool {
	for _, s := range rs.SentinelDefaults {
		if s == text {
			return true
		}
	}
	return false
}

// HasActionVerbPrefix reports whether name starts with a configured action verb
func (rs *RuleSet) HasActionVerbPrefix(name string) bool {
	lower := strings.ToLower(name)
	for _, v := range rs.ActionVerbs {
		if strings.HasPrefix(lower, v) {
			return true
		}
	}
	return false
}

// CredentialEnv returns the environment variables consulted for credentials.
// The system-derived <SYSTEM>_TOKEN and <SYSTEM>_API_KEY always come last.
func (rs *RuleSet) CredentialEnv() []string {
	out := append([]string(nil), rs.Construction.CredentialEnv...)
	if rs.System != "" {
		prefix := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(rs.System))
		out = append(out, prefix+"_TOKEN", prefix+"_API_KEY")
	}
	return out
}
