package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
defaults:
  max_depth: 4
  exclude_name_patterns: ["^debug_"]
systems:
  storage:
    root_prefixes: [demo.storage]
    boost_owner_patterns: ["BucketClient$"]
    penalize_method_patterns: ["_raw$"]
    prefer_public_over_private: false
    priority_limits:
      p2_limit: 50
    construction:
      strategies: [env_credentials, anonymous]
      credential_env: [STORAGE_KEY]
sdks:
  my-billing:
    anchors: [charge]
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	book, err := loader.Load(writeRules(t, sampleRules))
	require.NoError(t, err)
	assert.Equal(t, []string{"my-billing", "storage"}, book.Systems())

	storage := book.For("storage")
	assert.Equal(t, "storage", storage.System)
	assert.Equal(t, 4, storage.MaxDepth)
	assert.Equal(t, []string{"demo.storage"}, storage.RootPrefixes)
	assert.True(t, storage.ExcludeNames.Match("debug_dump"))
	assert.True(t, storage.BoostOwners.Match("demo.storage.BucketClient"))
	assert.True(t, storage.PenalizeMembers.Match("get_raw"))
	assert.False(t, storage.PreferPublic)
	assert.Equal(t, 50, storage.Limits.P2)
	assert.Equal(t, 100, storage.Limits.P3)
	assert.Equal(t, []string{StrategyEnvCredentials, StrategyAnonymous}, storage.Construction.Strategies)
	assert.Equal(t, []string{"STORAGE_KEY"}, storage.Construction.CredentialEnv)

	// Built-in defaults still apply where the file is silent
	assert.True(t, storage.ImportantOwners.Match("FooClient"))
}

func TestBook_For_Fallbacks(t *testing.T) {
	book, err := NewLoader(zerolog.Nop()).Parse([]byte(sampleRules))
	require.NoError(t, err)

	billing := book.For("my_billing")
	assert.Equal(t, []string{"charge"}, billing.Anchors)
	assert.Equal(t, "my_billing", billing.System)

	unknown := book.For("other")
	assert.Equal(t, "other", unknown.System)
	assert.Equal(t, 4, unknown.MaxDepth)
	assert.Empty(t, unknown.RootPrefixes)
}

func TestLoader_MissingFile(t *testing.T) {
	book, err := NewLoader(zerolog.Nop()).Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, book.Systems())
	assert.Equal(t, 6, book.For("x").MaxDepth)
}

func TestLoader_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown top-level key", "plugins: {}\n"},
		{"unknown system field", "systems:\n  s:\n    boost: [x]\n"},
		{"bad strategy", "systems:\n  s:\n    construction:\n      strategies: [magic]\n"},
		{"negative depth", "defaults:\n  max_depth: 0\n"},
		{"wrong type", "defaults:\n  prefer_public_over_private: maybe\n"},
	}

	loader := NewLoader(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema validation failed")
		})
	}
}

func TestLoader_InvalidPattern(t *testing.T) {
	_, err := NewLoader(zerolog.Nop()).Parse([]byte("systems:\n  s:\n    exclude_name_patterns: [\"(\"]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestLoader_EmptyDocument(t *testing.T) {
	book, err := NewLoader(zerolog.Nop()).Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, book.Systems())
}
