package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

type limitsBlock struct {
	P1All *bool `yaml:"p1_all"`
	P2    *int  `yaml:"p2_limit"`
	P3    *int  `yaml:"p3_limit"`
	P4    *int  `yaml:"p4_limit"`
	P5    *int  `yaml:"p5_limit"`
}

type constructionBlock struct {
	Strategies    []string `yaml:"strategies"`
	CredentialEnv []string `yaml:"credential_env"`
	ConfigFiles   []string `yaml:"config_files"`
}

// block is one defaults or per-system section of a rules file. Absent
// fields leave the inherited value untouched.
type block struct {
	RootPrefixes             []string           `yaml:"root_prefixes"`
	MaxDepth                 *int               `yaml:"max_depth"`
	ExcludeNamePatterns      []string           `yaml:"exclude_name_patterns"`
	ImportantClassPatterns   []string           `yaml:"important_class_patterns"`
	BoostOwnerPatterns       []string           `yaml:"boost_owner_patterns"`
	PenalizeOwnerPatterns    []string           `yaml:"penalize_owner_patterns"`
	BoostMethodPatterns      []string           `yaml:"boost_method_patterns"`
	PenalizeMethodPatterns   []string           `yaml:"penalize_method_patterns"`
	AnchoredVerbs            []string           `yaml:"anchored_verbs"`
	DestructiveVerbs         []string           `yaml:"destructive_verbs"`
	Anchors                  []string           `yaml:"anchors"`
	SentinelDefaults         []string           `yaml:"sentinel_defaults"`
	ContainerProtocolMethods []string           `yaml:"container_protocol_methods"`
	DropContainerMethods     *bool              `yaml:"drop_container_methods"`
	PreferPublicOverPrivate  *bool              `yaml:"prefer_public_over_private"`
	ConstructorMarker        *string            `yaml:"constructor_marker"`
	ScoreFloor               *float64           `yaml:"score_floor"`
	ImportantMethodThreshold *int               `yaml:"important_method_threshold"`
	PriorityLimits           *limitsBlock       `yaml:"priority_limits"`
	Construction             *constructionBlock `yaml:"construction"`
}

type document struct {
	Defaults *block            `yaml:"defaults"`
	Systems  map[string]*block `yaml:"systems"`
	SDKs     map[string]*block `yaml:"sdks"`
}

// apply layers a block over base and returns a new rule set
func apply(base *RuleSet, b *block) (*RuleSet, error) {
	rs := *base
	if b == nil {
		return &rs, nil
	}

	patterns := []struct {
		src []string
		dst *Patterns
	}{
		{b.ExcludeNamePatterns, &rs.ExcludeNames},
		{b.ImportantClassPatterns, &rs.ImportantOwners},
		{b.BoostOwnerPatterns, &rs.BoostOwners},
		{b.PenalizeOwnerPatterns, &rs.PenalizeOwners},
		{b.BoostMethodPatterns, &rs.BoostMembers},
		{b.PenalizeMethodPatterns, &rs.PenalizeMembers},
	}
	for _, p := range patterns {
		if p.src == nil {
			continue
		}
		compiled, err := Compile(p.src)
		if err != nil {
			return nil, err
		}
		*p.dst = compiled
	}

	words := []struct {
		src []string
		dst *[]string
	}{
		{b.RootPrefixes, &rs.RootPrefixes},
		{b.AnchoredVerbs, &rs.ActionVerbs},
		{b.DestructiveVerbs, &rs.DestructiveVerbs},
		{b.Anchors, &rs.Anchors},
		{b.SentinelDefaults, &rs.SentinelDefaults},
		{b.ContainerProtocolMethods, &rs.ContainerProtocolMembers},
	}
	for _, w := range words {
		if w.src != nil {
			*w.dst = append([]string(nil), w.src...)
		}
	}

	if b.MaxDepth != nil {
		rs.MaxDepth = *b.MaxDepth
	}
	if b.DropContainerMethods != nil {
		rs.DropContainerMembers = *b.DropContainerMethods
	}
	if b.PreferPublicOverPrivate != nil {
		rs.PreferPublic = *b.PreferPublicOverPrivate
	}
	if b.ConstructorMarker != nil {
		rs.ConstructorMarker = *b.ConstructorMarker
	}
	if b.ScoreFloor != nil {
		rs.ScoreFloor = *b.ScoreFloor
	}
	if b.ImportantMethodThreshold != nil {
		rs.ImportantMethodThreshold = *b.ImportantMethodThreshold
	}

	if l := b.PriorityLimits; l != nil {
		if l.P1All != nil {
			rs.Limits.P1All = *l.P1All
		}
		for _, v := range []struct {
			src *int
			dst *int
		}{{l.P2, &rs.Limits.P2}, {l.P3, &rs.Limits.P3}, {l.P4, &rs.Limits.P4}, {l.P5, &rs.Limits.P5}} {
			if v.src != nil {
				*v.dst = *v.src
			}
		}
	}

	if c := b.Construction; c != nil {
		if c.Strategies != nil {
			rs.Construction.Strategies = append([]string(nil), c.Strategies...)
		}
		if c.CredentialEnv != nil {
			rs.Construction.CredentialEnv = append([]string(nil), c.CredentialEnv...)
		}
		if c.ConfigFiles != nil {
			rs.Construction.ConfigFiles = append([]string(nil), c.ConfigFiles...)
		}
	}

	return &rs, nil
}

// Book holds the rule sets loaded from one rules file
type Book struct {
	Path     string
	defaults *RuleSet
	systems  map[string]*RuleSet
}

// NewBook returns a book holding only the built-in defaults
func NewBook() *Book {
	return &Book{defaults: Defaults(), systems: make(map[string]*RuleSet)}
}

// For returns the rule set for a system: exact name, then the name with
// underscores and hyphens swapped, then the defaults
func (b *Book) For(system string) *RuleSet {
	if rs, ok := b.systems[system]; ok {
		return rs
	}
	for _, alt := range []string{
		strings.ReplaceAll(system, "_", "-"),
		strings.ReplaceAll(system, "-", "_"),
	} {
		if rs, ok := b.systems[alt]; ok {
			return rs.WithSystem(system)
		}
	}
	return b.defaults.WithSystem(system)
}

// Systems lists the configured system ids in sorted order
func (b *Book) Systems() []string {
	out := make([]string, 0, len(b.systems))
	for name := range b.systems {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Loader reads and validates rules files
type Loader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewLoader creates a new rules loader
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:       logger.With().Str("component", "rules-loader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(RulesSchema),
	}
}

// Load reads a rules file. A missing file yields the defaults.
func (l *Loader) Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug().Str("path", path).Msg("Rules file not found, using defaults")
		return NewBook(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	book, err := l.Parse(data)
	if err != nil {
		return nil, err
	}
	book.Path = path

	l.logger.Info().
		Str("path", path).
		Strs("systems", book.Systems()).
		Msg("Loaded rules")

	return book, nil
}

// Parse validates and decodes rules YAML
func (l *Loader) Parse(data []byte) (*Book, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	if raw == nil {
		return NewBook(), nil
	}

	if err := l.validateSchema(raw); err != nil {
		return nil, fmt.Errorf("rules schema validation failed: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	defaults, err := apply(Defaults(), doc.Defaults)
	if err != nil {
		return nil, fmt.Errorf("invalid defaults: %w", err)
	}

	book := &Book{defaults: defaults, systems: make(map[string]*RuleSet)}
	for _, section := range []map[string]*block{doc.SDKs, doc.Systems} {
		for name, b := range section {
			rs, err := apply(defaults, b)
			if err != nil {
				return nil, fmt.Errorf("invalid rules for %s: %w", name, err)
			}
			book.systems[name] = rs.WithSystem(name)
		}
	}
	return book, nil
}

func (l *Loader) validateSchema(doc any) error {
	result, err := gojsonschema.Validate(l.schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Load is a convenience function that loads a rules file with the global logger
func Load(path string) (*Book, error) {
	return NewLoader(log.Logger).Load(path)
}
