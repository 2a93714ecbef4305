package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/sdkbridge/internal/demosdk"
	"github.com/harun/sdkbridge/pkg/discovery"
	"github.com/harun/sdkbridge/pkg/rules"
)

func newEngine() *Engine {
	rs := rules.Defaults().WithSystem(demosdk.System)
	return New(demosdk.NewRegistry(), rs, zerolog.Nop())
}

func toolNames(c *Catalog) []string {
	out := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		out[i] = t.Name
	}
	return out
}

func TestDiscover_Pipeline(t *testing.T) {
	catalog, err := newEngine().Discover(context.Background(), Config{})
	require.NoError(t, err)

	assert.Equal(t, demosdk.System, catalog.System)
	assert.Equal(t, demosdk.System, catalog.Root)
	assert.NotEmpty(t, catalog.RunID)

	names := toolNames(catalog)
	assert.Contains(t, names, "cloudkit_ping")
	assert.Contains(t, names, "cloudkit_bucket_client_list_buckets")
	assert.Contains(t, names, "cloudkit_session_login")

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate tool %s", n)
		seen[n] = true
	}

	// the private defining path never leaks into the catalog
	for _, tool := range catalog.Tools {
		assert.NotContains(t, tool.Reference, "._client.")
	}

	stats := catalog.Stats
	assert.Equal(t, len(catalog.Tools), stats.Tools)
	assert.GreaterOrEqual(t, stats.Walked, stats.Selected)
	assert.GreaterOrEqual(t, stats.Selected, stats.Deduplicated)
	assert.NotEmpty(t, catalog.Groups)
	require.NotNil(t, catalog.Patterns)
	assert.NotEmpty(t, catalog.Patterns.AuthFlows)
}

func TestDiscover_Flags(t *testing.T) {
	catalog, err := newEngine().Discover(context.Background(), Config{})
	require.NoError(t, err)

	del, ok := catalog.Lookup("cloudkit_bucket_client_delete_bucket")
	require.True(t, ok)
	assert.True(t, del.Flags.Destructive)
	assert.True(t, del.Flags.Confirm)
	assert.True(t, del.Flags.Dangerous)

	list, ok := catalog.Lookup("cloudkit_bucket_client_list_objects")
	require.True(t, ok)
	assert.True(t, list.Flags.Paginated)
	assert.Contains(t, list.InputSchema["required"], "bucket")

	watch, ok := catalog.Lookup("cloudkit_bucket_client_watch")
	require.True(t, ok)
	assert.True(t, watch.Flags.Async)
}

func TestDiscover_MaxTools(t *testing.T) {
	catalog, err := newEngine().Discover(context.Background(), Config{MaxTools: 3})
	require.NoError(t, err)

	assert.Len(t, catalog.Tools, 3)
	assert.Equal(t, 3, catalog.Stats.Deduplicated)
}

func TestDiscover_UnknownRoot(t *testing.T) {
	catalog, err := newEngine().Discover(context.Background(), Config{Root: "nowhere"})
	require.Error(t, err)
	assert.ErrorIs(t, err, discovery.ErrDiscovery)

	require.NotNil(t, catalog)
	assert.Empty(t, catalog.Tools)
	assert.NotNil(t, catalog.Patterns)
}

func TestCatalog_Lookup(t *testing.T) {
	catalog, err := newEngine().Discover(context.Background(), Config{})
	require.NoError(t, err)

	tool, ok := catalog.Lookup("cloudkit_ping")
	require.True(t, ok)
	assert.Equal(t, "cloudkit.Ping", tool.Reference)

	_, ok = catalog.Lookup("cloudkit_missing")
	assert.False(t, ok)

	// a catalog decoded from JSON has no index and falls back to scanning
	bare := &Catalog{Tools: catalog.Tools}
	_, ok = bare.Lookup("cloudkit_ping")
	assert.True(t, ok)
}
