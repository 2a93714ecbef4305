package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.System)
	assert.Equal(t, 0, cfg.Bridge.TimeoutSeconds)
	assert.Equal(t, time.Duration(0), cfg.Bridge.Timeout())
	assert.Equal(t, 4, cfg.Bridge.Concurrency)
	assert.Equal(t, []string{"*"}, cfg.Tools.Allow)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	assert.False(t, cfg.HTTP.Enabled)
	assert.Equal(t, 60, cfg.HTTP.RateLimitPerMinute)
	assert.Equal(t, "sdkbridge", cfg.Tracing.ServiceName)
}

func TestHTTPConfigPolicy(t *testing.T) {
	assert.Nil(t, HTTPConfig{}.Policy())

	p := HTTPConfig{Deny: []string{"cloudkit_session_*"}}.Policy()
	require.NotNil(t, p)
	assert.Equal(t, []string{"*"}, p.Allow)
	assert.False(t, p.IsToolAllowed("cloudkit_session_login"))
	assert.True(t, p.IsToolAllowed("cloudkit_ping"))

	p = ToolPolicyConfig{Allow: []string{"cloudkit_*"}}.Policy()
	assert.True(t, p.IsToolAllowed("cloudkit_ping"))
	assert.False(t, p.IsToolAllowed("other_ping"))
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.System = "cloudkit"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "valid nested root", mutate: func(c *Config) { c.Root = "cloudkit.storage" }},
		{name: "missing system", mutate: func(c *Config) { c.System = "" }, wantErr: "system is required"},
		{name: "dotted system", mutate: func(c *Config) { c.System = "cloud.kit" }, wantErr: "invalid system id"},
		{name: "foreign root", mutate: func(c *Config) { c.Root = "other.storage" }, wantErr: "outside system"},
		{name: "negative max tools", mutate: func(c *Config) { c.MaxTools = -1 }, wantErr: "max_tools"},
		{name: "watch without file", mutate: func(c *Config) { c.WatchRules = true }, wantErr: "watch_rules"},
		{name: "negative timeout", mutate: func(c *Config) { c.Bridge.TimeoutSeconds = -1 }, wantErr: "timeout_seconds"},
		{
			name:    "metrics without address",
			mutate:  func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" },
			wantErr: "metrics address",
		},
		{name: "audit without file", mutate: func(c *Config) { c.Audit.Enabled = true }, wantErr: "audit file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.System = "cloudkit"

	s := cfg.String()
	assert.Contains(t, s, `"system": "cloudkit"`)
	assert.Contains(t, s, `"timeout_seconds": 30`)
}
