package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/sdkbridge/internal/config"
	"github.com/harun/sdkbridge/internal/demosdk"
	"github.com/harun/sdkbridge/internal/logger"
	"github.com/harun/sdkbridge/internal/observability"
	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/bridge"
	"github.com/harun/sdkbridge/pkg/engine"
	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
	"github.com/harun/sdkbridge/pkg/toolexecutor"
)

// providers maps system ids to the reflection providers linked into this binary
var providers = map[string]func() reflection.Provider{
	demosdk.System: func() reflection.Provider { return demosdk.NewRegistry() },
}

// knownSystems lists the linked system ids in sorted order
func knownSystems() []string {
	out := make([]string, 0, len(providers))
	for id := range providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func providerFor(system string) (reflection.Provider, error) {
	newProvider, ok := providers[system]
	if !ok {
		return nil, fmt.Errorf("unknown system %q (known: %v)", system, knownSystems())
	}
	return newProvider(), nil
}

// session is the state shared by commands: config, logging, rules and the
// optional audit and tracing sinks
type session struct {
	cfg    *config.Config
	log    *logger.Logger
	logger zerolog.Logger
	loader *rules.Loader
	book   *rules.Book

	closers []func() error
}

// open loads the configuration and brings up logging, rules, audit and
// tracing. system overrides the configured system when non-empty.
func (o *rootOptions) open(cmd *cobra.Command, system string) (*session, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if system != "" && system != cfg.System {
		cfg.System = system
		cfg.Root = ""
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	l, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    cmd.ErrOrStderr(),
		Secrets:   []string{cfg.HTTP.Secret},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s := &session{
		cfg:     cfg,
		log:     l,
		logger:  l.GetZerolog(),
		closers: []func() error{l.Close},
	}

	s.loader = rules.NewLoader(s.logger)
	if cfg.RulesFile != "" {
		s.book, err = s.loader.Load(cfg.RulesFile)
		if err != nil {
			s.Close()
			return nil, err
		}
	} else {
		s.book = rules.NewBook()
	}

	if cfg.Audit.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.File), 0755); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		if err := observability.InitAuditLogger(cfg.Audit.File); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		s.closers = append(s.closers, observability.GetAuditLogger().Close)
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			s.closers = append(s.closers, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return tracing.ShutdownOpenTelemetry(ctx)
			})
		}
	}

	return s, nil
}

// Close releases resources in reverse order of acquisition
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// rulesFor returns the rule set for system and registers its credential
// values with the log redactor
func (s *session) rulesFor(system string) *rules.RuleSet {
	rs := s.book.For(system)
	s.redactCredentials(rs)
	return rs
}

func (s *session) redactCredentials(rs *rules.RuleSet) {
	r := s.log.Redactor()
	if r == nil {
		return
	}
	for _, name := range rs.CredentialEnv() {
		if v := os.Getenv(name); v != "" {
			r.AddValue(v)
		}
	}
}

// policy merges the configured tool policy with transport restrictions
func (s *session) policy(restrictions ...*toolexecutor.ToolPolicy) *toolexecutor.ToolPolicy {
	all := append([]*toolexecutor.ToolPolicy{s.cfg.Tools.Policy()}, restrictions...)
	return toolexecutor.NewPolicyEngine().MergePolicies(all...)
}

// toolset is one discovered system ready for execution
type toolset struct {
	system   string
	provider reflection.Provider
	rules    *rules.RuleSet
	catalog  *engine.Catalog
	bridge   *bridge.Bridge
	executor *toolexecutor.ToolExecutor
}

// build discovers system and loads its catalog into an executor
func (s *session) build(ctx context.Context, system string) (*toolset, error) {
	if system == "" {
		return nil, fmt.Errorf("no system given: pass --system or set system in the config")
	}
	provider, err := providerFor(system)
	if err != nil {
		return nil, err
	}

	ts := &toolset{
		system:   system,
		provider: provider,
		rules:    s.rulesFor(system),
	}
	ts.bridge = bridge.New(provider, ts.rules, bridge.Config{Timeout: s.cfg.Bridge.Timeout()}, s.logger)
	ts.executor = toolexecutor.New(ts.bridge)

	if err := ts.refresh(ctx, s); err != nil {
		return nil, err
	}
	return ts, nil
}

// refresh re-runs discovery with the current rules and swaps the catalog
func (ts *toolset) refresh(ctx context.Context, s *session) error {
	ts.bridge.SetRules(ts.rules)

	catalog, err := engine.New(ts.provider, ts.rules, s.logger).Discover(ctx, engine.Config{
		Root:     s.cfg.Root,
		MaxTools: s.cfg.MaxTools,
	})
	if err != nil {
		return fmt.Errorf("discovery of %s failed: %w", ts.system, err)
	}

	if err := ts.executor.Load(catalog.Tools); err != nil {
		s.logger.Warn().Err(err).Str("system", ts.system).Msg("Some tools were skipped")
	}
	ts.catalog = catalog
	return nil
}
