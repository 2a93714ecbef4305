package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/sdkbridge/internal/config"
)

// writeConfig writes a config for the cloudkit system into a temp dir
func writeConfig(t *testing.T, extra map[string]any) string {
	t.Helper()

	dir := t.TempDir()
	doc := map[string]any{
		"system":   "cloudkit",
		"data_dir": dir,
	}
	for k, v := range extra {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, "sdkbridge.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// run executes the command tree and returns stdout and stderr
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := GetRootCmd()
	cmd.SetArgs(args)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestDiscoverCommand(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	t.Run("configured system", func(t *testing.T) {
		out, _, err := run(t, "", "--config", cfgPath, "discover")
		require.NoError(t, err)

		var catalog map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &catalog))
		assert.Equal(t, "cloudkit", catalog["system"])
		assert.Nil(t, catalog["patterns"])

		tools, ok := catalog["tools"].([]any)
		require.True(t, ok)
		assert.NotEmpty(t, tools)
	})

	t.Run("with patterns and a cap", func(t *testing.T) {
		out, _, err := run(t, "", "--config", cfgPath, "discover", "cloudkit", "--patterns", "--max-tools", "2")
		require.NoError(t, err)

		var catalog map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &catalog))
		assert.NotNil(t, catalog["patterns"])
		assert.Len(t, catalog["tools"], 2)
	})

	t.Run("to file", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "catalog.json")
		out, _, err := run(t, "", "--config", cfgPath, "discover", "-o", dest)
		require.NoError(t, err)
		assert.Empty(t, out)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Contains(t, string(data), "cloudkit_ping")
	})

	t.Run("unknown system alongside a known one", func(t *testing.T) {
		out, _, err := run(t, "", "--config", cfgPath, "discover", "cloudkit", "nosuch")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown system "nosuch"`)

		var catalogs []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &catalogs))
		require.Len(t, catalogs, 1)
		assert.Equal(t, "cloudkit", catalogs[0]["system"])
	})

	t.Run("root needs a single system", func(t *testing.T) {
		_, _, err := run(t, "", "--config", cfgPath, "discover", "cloudkit", "cloudkit", "--root", "cloudkit.auth")
		require.Error(t, err)
	})
}

func TestCallCommand(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	t.Run("success", func(t *testing.T) {
		out, _, err := run(t, "", "--config", cfgPath, "call", "cloudkit_ping")
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"success","tool":"cloudkit_ping","result":"pong"}`, strings.TrimSpace(out))
	})

	t.Run("bad arguments", func(t *testing.T) {
		_, _, err := run(t, "", "--config", cfgPath, "call", "cloudkit_ping", "--args", "[1]")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--args")
	})

	t.Run("credentials from the environment", func(t *testing.T) {
		t.Setenv("CLOUDKIT_TOKEN", "s3cr3t-token-value")

		out, _, err := run(t, "", "--config", cfgPath, "call", "cloudkit_bucket_client_list_buckets", "--args", `{"limit": "5"}`)
		require.NoError(t, err)
		assert.Contains(t, out, `"status":"success"`)
	})

	t.Run("confirmation", func(t *testing.T) {
		t.Setenv("CLOUDKIT_TOKEN", "s3cr3t-token-value")
		args := []string{"--config", cfgPath, "call", "cloudkit_bucket_client_delete_bucket", "--args", `{"name":"nope"}`}

		out, _, err := run(t, "", args...)
		require.Error(t, err)
		assert.Contains(t, out, "requires confirmation")

		out, _, err = run(t, "", append(args, "--yes")...)
		require.Error(t, err)
		assert.NotContains(t, out, "requires confirmation")
	})

	t.Run("policy", func(t *testing.T) {
		denied := writeConfig(t, map[string]any{"tools": map[string]any{"allow": []string{"*"}, "deny": []string{"cloudkit_ping"}}})

		out, _, err := run(t, "", "--config", denied, "call", "cloudkit_ping")
		require.Error(t, err)
		assert.Contains(t, out, "not allowed by policy")
	})
}

func TestServeCommand(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	stdin := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"cloudkit_ping","arguments":{}}}`,
	}, "\n") + "\n"

	out, stderr, err := run(t, stdin, "--config", cfgPath, "serve")
	require.NoError(t, err)

	ids := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var resp map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), "stdout must carry only protocol frames")
		ids[string(mustJSON(t, resp["id"]))] = true
	}
	assert.True(t, ids["1"])
	assert.True(t, ids["2"])
	assert.Contains(t, out, "pong")
	assert.Contains(t, stderr, "Serving tools")
}

func TestServeCommand_NothingToServe(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	_, _, err := run(t, "", "--config", cfgPath, "serve", "--stdio=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to serve")
}

func TestInitCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "conf", "sdkbridge.json")

	out, _, err := run(t, "", "--config", cfgPath, "init", "--system", "cloudkit")
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "cloudkit", cfg.System)
	assert.Zero(t, cfg.Bridge.TimeoutSeconds)

	_, _, err = run(t, "", "--config", cfgPath, "init", "--system", "cloudkit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = run(t, "", "--config", cfgPath, "init", "--system", "cloudkit", "--force")
	require.NoError(t, err)

	_, _, err = run(t, "", "--config", cfgPath, "init", "--system", "bad id", "--force")
	require.Error(t, err)
}

func TestSystemsCommand(t *testing.T) {
	cfgPath := writeConfig(t, nil)
	t.Setenv("CLOUDKIT_API_KEY", "key-value-123")

	out, _, err := run(t, "", "--config", cfgPath, "systems")
	require.NoError(t, err)

	assert.Contains(t, out, "SYSTEM")
	assert.Contains(t, out, "cloudkit *")
	assert.Contains(t, out, "defaults")
	assert.Contains(t, out, "CLOUDKIT_API_KEY")
	assert.NotContains(t, out, "key-value-123")
}

func TestInvalidConfigRejected(t *testing.T) {
	cfgPath := writeConfig(t, map[string]any{"max_tools": -1})

	_, _, err := run(t, "", "--config", cfgPath, "discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tools")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestSessionPolicyMergesRestrictions(t *testing.T) {
	s := &session{cfg: config.DefaultConfig()}
	s.cfg.Tools.Deny = []string{"cloudkit_compute_*"}

	base := s.policy()
	assert.True(t, base.IsToolAllowed("cloudkit_session_login"))
	assert.False(t, base.IsToolAllowed("cloudkit_compute_start_instance"))

	httpOnly := s.policy(config.HTTPConfig{Deny: []string{"cloudkit_session_*"}}.Policy())
	assert.True(t, httpOnly.IsToolAllowed("cloudkit_ping"))
	assert.False(t, httpOnly.IsToolAllowed("cloudkit_session_login"))
	assert.False(t, httpOnly.IsToolAllowed("cloudkit_compute_start_instance"))
}
