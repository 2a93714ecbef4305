package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/harun/sdkbridge/pkg/toolexecutor"
)

var systemIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSystemID validates a system id
func (v *Validator) ValidateSystemID(id string) error {
	if id == "" {
		return fmt.Errorf("system id cannot be empty")
	}
	if !systemIDPattern.MatchString(id) {
		return fmt.Errorf("invalid system id %q (letters, digits, _ and -, starting with a letter)", id)
	}
	return nil
}

// ValidateRoot validates a namespace root against its system
func (v *Validator) ValidateRoot(root, system string) error {
	if root == "" {
		return nil // Use the system id
	}
	for _, seg := range strings.Split(root, ".") {
		if seg == "" {
			return fmt.Errorf("invalid root %q: empty segment", root)
		}
	}
	if system != "" && root != system && !strings.HasPrefix(root, system+".") {
		return fmt.Errorf("root %s is outside system %s", root, system)
	}
	return nil
}

// ValidateRulesFile checks that a configured rule book exists
func (v *Validator) ValidateRulesFile(path string) error {
	if path == "" {
		return nil // Built-in heuristics
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rules file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("rules file %s is a directory", path)
	}
	return nil
}

// ValidateAddr validates a listen address
func (v *Validator) ValidateAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation and returns every problem
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.System != "" {
		if err := v.ValidateSystemID(cfg.System); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateRoot(cfg.Root, cfg.System); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateRulesFile(cfg.RulesFile); err != nil {
		errors = append(errors, err)
	}
	if cfg.WatchRules && cfg.RulesFile == "" {
		errors = append(errors, fmt.Errorf("watch_rules requires rules_file"))
	}
	if cfg.MaxTools < 0 {
		errors = append(errors, fmt.Errorf("max_tools must be >= 0"))
	}

	if cfg.Bridge.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("bridge.timeout_seconds must be >= 0"))
	}
	if cfg.Bridge.Concurrency < 0 {
		errors = append(errors, fmt.Errorf("bridge.concurrency must be >= 0"))
	}

	policies := toolexecutor.NewPolicyEngine()
	if err := policies.ValidatePolicy(cfg.Tools.Policy()); err != nil {
		errors = append(errors, fmt.Errorf("tools: %w", err))
	}

	if cfg.Metrics.Enabled {
		if err := v.ValidateAddr(cfg.Metrics.Addr); err != nil {
			errors = append(errors, fmt.Errorf("metrics: %w", err))
		}
	}

	if cfg.HTTP.Enabled {
		if err := v.ValidateAddr(cfg.HTTP.Addr); err != nil {
			errors = append(errors, fmt.Errorf("http: %w", err))
		}
		if cfg.HTTP.RateLimitPerMinute < 0 {
			errors = append(errors, fmt.Errorf("http.rate_limit_per_minute must be >= 0"))
		}
		if err := policies.ValidatePolicy(cfg.HTTP.Policy()); err != nil {
			errors = append(errors, fmt.Errorf("http: %w", err))
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errors = append(errors, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
