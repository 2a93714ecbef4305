package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg, err := NewLoader(filepath.Join(tmpDir, "nonexistent.json")).Load()

		require.NoError(t, err)
		assert.Zero(t, cfg.Bridge.TimeoutSeconds)
		assert.Equal(t, []string{"*"}, cfg.Tools.Allow)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"system": "cloudkit",
			"rules_file": "rules.yaml",
			"max_tools": 40,
			"logging": {"level": "debug"},
			"tools": {"allow": ["cloudkit_*"], "deny": ["cloudkit_session_*"]},
			"data_dir": "` + filepath.ToSlash(tmpDir) + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "cloudkit", cfg.System)
		assert.Equal(t, 40, cfg.MaxTools)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, []string{"cloudkit_*"}, cfg.Tools.Allow)
		assert.Equal(t, []string{"cloudkit_session_*"}, cfg.Tools.Deny)
		// untouched keys keep their defaults
		assert.Zero(t, cfg.Bridge.TimeoutSeconds)
		assert.True(t, cfg.Logging.Redaction)
		// relative rule files resolve next to the config
		assert.Equal(t, filepath.Join(tmpDir, "rules.yaml"), cfg.RulesFile)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{"system": "cloudkit", "audit": {"enabled": true}, "data_dir": "` + filepath.ToSlash(tmpDir) + `"}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "sdkbridge.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "audit.log"), cfg.Audit.File)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("SDKBRIDGE_SYSTEM", "github")
		t.Setenv("SDKBRIDGE_LOGGING_LEVEL", "warn")
		t.Setenv("SDKBRIDGE_BRIDGE_TIMEOUT_SECONDS", "5")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "github", cfg.System)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.Bridge.TimeoutSeconds)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "sdkbridge.json")

	cfg := DefaultConfig()
	cfg.System = "cloudkit"
	cfg.MaxTools = 12
	cfg.DataDir = tmpDir

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "cloudkit", loaded.System)
	assert.Equal(t, 12, loaded.MaxTools)
	assert.Equal(t, cfg.Bridge, loaded.Bridge)
}

func TestLoadConvenience(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
