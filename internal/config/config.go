package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/sdkbridge/pkg/toolexecutor"
)

// Config represents the sdkbridge configuration
type Config struct {
	// System is the default system id to discover and serve
	System string `json:"system" mapstructure:"system"`

	// Root is the namespace path walked; the system id when empty
	Root string `json:"root" mapstructure:"root"`

	// RulesFile points at a YAML rule book; built-in heuristics when empty
	RulesFile string `json:"rules_file" mapstructure:"rules_file"`

	// MaxTools caps the catalog; zero keeps every tool
	MaxTools int `json:"max_tools" mapstructure:"max_tools"`

	// WatchRules reloads the rule book when the file changes
	WatchRules bool `json:"watch_rules" mapstructure:"watch_rules"`

	// Bridge tunes tool execution
	Bridge BridgeConfig `json:"bridge" mapstructure:"bridge"`

	// Tools restricts which tools are exposed
	Tools ToolPolicyConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// HTTP tool transport
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Audit trail of tool calls and rule reloads
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BridgeConfig holds execution settings
type BridgeConfig struct {
	// TimeoutSeconds bounds each tool call; zero means no deadline
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Concurrency    int `json:"concurrency" mapstructure:"concurrency"`
}

// Timeout returns the per-call timeout
func (b BridgeConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// ToolPolicyConfig defines tool access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
	// Confirm pre-approves tools flagged as requiring confirmation
	Confirm bool `json:"confirm" mapstructure:"confirm"`
}

// Policy returns the configured allow and deny lists as a tool policy
func (t ToolPolicyConfig) Policy() *toolexecutor.ToolPolicy {
	return &toolexecutor.ToolPolicy{Allow: t.Allow, Deny: t.Deny}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// HTTPConfig holds the HTTP transport settings. It also serves /metrics.
type HTTPConfig struct {
	Enabled            bool   `json:"enabled" mapstructure:"enabled"`
	Addr               string `json:"addr" mapstructure:"addr"`
	Secret             string `json:"secret" mapstructure:"secret"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	// Allow and Deny narrow tools.allow and tools.deny for HTTP callers
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// Policy returns the HTTP-only restriction, nil when none is configured.
// An empty allow list with deny entries allows everything else.
func (h HTTPConfig) Policy() *toolexecutor.ToolPolicy {
	if len(h.Allow) == 0 && len(h.Deny) == 0 {
		return nil
	}
	allow := h.Allow
	if len(allow) == 0 {
		allow = []string{"*"}
	}
	return &toolexecutor.ToolPolicy{Allow: allow, Deny: h.Deny}
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			TimeoutSeconds: 0,
			Concurrency:    4,
		},
		Tools: ToolPolicyConfig{
			Allow: []string{"*"},
			Deny:  []string{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		HTTP: HTTPConfig{
			Enabled:            false,
			Addr:               "127.0.0.1:8765",
			RateLimitPerMinute: 60,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sdkbridge",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.System) == "" {
		return fmt.Errorf("system is required")
	}
	if strings.ContainsAny(c.System, " \t./") {
		return fmt.Errorf("invalid system id %q: must be a single identifier", c.System)
	}
	if c.Root != "" && c.Root != c.System && !strings.HasPrefix(c.Root, c.System+".") {
		return fmt.Errorf("root %s is outside system %s", c.Root, c.System)
	}
	if c.MaxTools < 0 {
		return fmt.Errorf("max_tools must be >= 0")
	}
	if c.WatchRules && c.RulesFile == "" {
		return fmt.Errorf("watch_rules requires rules_file")
	}
	if c.Bridge.TimeoutSeconds < 0 {
		return fmt.Errorf("bridge.timeout_seconds must be >= 0")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}
	if c.Audit.Enabled && c.Audit.File == "" {
		return fmt.Errorf("audit file is required when audit is enabled")
	}
	return nil
}
