package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/sdkbridge/internal/observability"
	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/discovery"
	"github.com/harun/sdkbridge/pkg/patterns"
	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
	"github.com/harun/sdkbridge/pkg/toolgen"
)

// Pipeline stage names used in stats and metrics
const (
	StageWalked   = "walked"
	StageSelected = "selected"
	StageDeduped  = "deduplicated"
	StageTools    = "tools"
)

// Stats counts candidates through the pipeline
type Stats struct {
	Namespaces   int `json:"namespaces"`
	Owners       int `json:"owners"`
	Walked       int `json:"walked"`
	Selected     int `json:"selected"`
	Deduplicated int `json:"deduplicated"`
	Tools        int `json:"tools"`
}

// Catalog is the output of one discovery run
type Catalog struct {
	System      string               `json:"system"`
	Root        string               `json:"root"`
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Tools       []toolgen.Descriptor `json:"tools"`
	Groups      []toolgen.Group      `json:"groups"`
	Patterns    *patterns.Report     `json:"patterns"`
	Stats       Stats                `json:"stats"`

	index map[string]int
}

func newCatalog(system, root, runID string) *Catalog {
	return &Catalog{
		System:      system,
		Root:        root,
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Tools:       []toolgen.Descriptor{},
		Patterns:    patterns.Analyze(nil),
	}
}

// Lookup finds a tool by name
func (c *Catalog) Lookup(name string) (toolgen.Descriptor, bool) {
	if c.index != nil {
		if i, ok := c.index[name]; ok {
			return c.Tools[i], true
		}
		return toolgen.Descriptor{}, false
	}
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return toolgen.Descriptor{}, false
}

func (c *Catalog) reindex() {
	c.index = make(map[string]int, len(c.Tools))
	for i, t := range c.Tools {
		c.index[t.Name] = i
	}
}

// Config selects what a run discovers
type Config struct {
	// Root is the namespace path to walk; the system id when empty
	Root string
	// MaxTools caps the catalog after deduplication; zero keeps all
	MaxTools int
}

// Engine runs discovery, selection, deduplication and tool generation for
// one system
type Engine struct {
	provider reflection.Provider
	rules    *rules.RuleSet
	logger   zerolog.Logger
}

// New creates an engine
func New(provider reflection.Provider, rs *rules.RuleSet, logger zerolog.Logger) *Engine {
	observability.EnsureRegistered()
	return &Engine{
		provider: provider,
		rules:    rs,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Discover builds the tool catalog. A root that cannot be walked yields an
// empty catalog together with the error.
func (e *Engine) Discover(ctx context.Context, cfg Config) (*Catalog, error) {
	start := time.Now()
	system := e.rules.System
	root := cfg.Root
	if root == "" {
		root = system
	}

	ctx = tracing.NewDiscoveryContext(ctx, system)
	ctx, span := tracing.StartSpan(ctx, "engine.discover", attribute.String("sdkbridge.root", root))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, e.logger)
	catalog := newCatalog(system, root, tracing.GetRunID(ctx))

	walker := discovery.NewWalker(e.provider, e.rules, logger)
	res, err := walker.Walk(ctx, root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordDiscovery(system, time.Since(start), false)
		logger.Error().Err(err).Str("root", root).Msg("Discovery failed")
		return catalog, err
	}

	discovery.ScoreAll(res.Candidates, e.rules, res.ImportantOwners)
	selected := discovery.Select(res.Candidates, e.rules)
	deduped := discovery.Deduplicate(selected, res.Aliases, e.rules.PreferPublic)
	if cfg.MaxTools > 0 && len(deduped) > cfg.MaxTools {
		deduped = deduped[:cfg.MaxTools]
	}

	gen := toolgen.NewGenerator(e.rules, logger)
	catalog.Tools = gen.Generate(deduped)
	catalog.Groups = gen.Groups(catalog.Tools)
	catalog.Patterns = patterns.Analyze(deduped)
	catalog.Stats = Stats{
		Namespaces:   res.Namespaces,
		Owners:       res.Owners,
		Walked:       len(res.Candidates),
		Selected:     len(selected),
		Deduplicated: len(deduped),
		Tools:        len(catalog.Tools),
	}
	catalog.reindex()

	duration := time.Since(start)
	observability.RecordDiscovery(system, duration, true)
	observability.SetStageCandidates(system, StageWalked, catalog.Stats.Walked)
	observability.SetStageCandidates(system, StageSelected, catalog.Stats.Selected)
	observability.SetStageCandidates(system, StageDeduped, catalog.Stats.Deduplicated)
	observability.SetStageCandidates(system, StageTools, catalog.Stats.Tools)

	span.SetAttributes(attribute.Int("sdkbridge.tools", catalog.Stats.Tools))
	logger.Info().
		Str("root", root).
		Int("walked", catalog.Stats.Walked).
		Int("selected", catalog.Stats.Selected).
		Int("tools", catalog.Stats.Tools).
		Dur("duration", duration).
		Msg("Discovery completed")

	return catalog, nil
}
