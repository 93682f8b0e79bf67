package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Settings {
	t.Helper()
	cfg := config.Default()
	cfg.Executor.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Executor.RuntimeDir = filepath.Join(t.TempDir(), "runtime")
	return &cfg
}

func TestBuilder_Build_CreatesDirsAndScript(t *testing.T) {
	cfg := newTestConfig(t)
	b := NewBuilder(cfg)
	task := &tasks.Task{ID: "task-1"}

	plan, err := b.Build(task, "echo hello", "local", nil, nil, nil)
	require.NoError(t, err)

	info, err := os.Stat(plan.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Stat(plan.RuntimeDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	scriptContent, err := os.ReadFile(plan.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(scriptContent), "echo hello")
	assert.Contains(t, string(scriptContent), "RESOLWE_HOST_URL")

	scriptInfo, err := os.Stat(plan.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), scriptInfo.Mode().Perm())

	require.Len(t, plan.Argv, 3)
	assert.Equal(t, "/bin/bash", plan.Argv[0])
}

func TestBuilder_Build_WritesManifestAndSettings(t *testing.T) {
	cfg := newTestConfig(t)
	b := NewBuilder(cfg)
	task := &tasks.Task{ID: "task-1"}

	plan, err := b.Build(task, "", "local", nil, nil, nil)
	require.NoError(t, err)

	manifestRaw, err := os.ReadFile(filepath.Join(plan.RuntimeDir, "manifest.json"))
	require.NoError(t, err)
	var manifest []manifestEntry
	require.NoError(t, json.Unmarshal(manifestRaw, &manifest))
	assert.NotEmpty(t, manifest)

	_, err = os.Stat(filepath.Join(plan.RuntimeDir, "constants.json"))
	require.NoError(t, err)
}

func TestBuilder_Build_SecretsVault(t *testing.T) {
	cfg := newTestConfig(t)
	b := NewBuilder(cfg)
	task := &tasks.Task{ID: "task-1"}

	plan, err := b.Build(task, "echo ok", "local", map[string][]byte{"api-key": []byte("sekrit")}, nil, nil)
	require.NoError(t, err)

	vaultDir := filepath.Join(plan.RuntimeDir, "secrets")
	info, err := os.Stat(vaultDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretsDirMode), info.Mode().Perm())

	secretPath := filepath.Join(vaultDir, "api-key")
	data, err := os.ReadFile(secretPath)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", string(data))

	secretInfo, err := os.Stat(secretPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMode), secretInfo.Mode().Perm())
}

func TestBuilder_Build_SecretAlreadyExists(t *testing.T) {
	cfg := newTestConfig(t)
	b := NewBuilder(cfg)
	task := &tasks.Task{ID: "task-1"}

	plan1, err := b.Build(task, "echo ok", "local", map[string][]byte{"api-key": []byte("one")}, nil, nil)
	require.NoError(t, err)

	// Pre-create the secret file before the second build's O_EXCL write,
	// simulating an attacker (or a stale leftover) racing the vault.
	vaultDir := filepath.Join(plan1.RuntimeDir, "secrets")
	require.NoError(t, os.Chmod(vaultDir, 0o700))
	require.NoError(t, os.Remove(filepath.Join(vaultDir, "api-key")))
	require.NoError(t, os.WriteFile(filepath.Join(vaultDir, "api-key"), []byte("preexisting"), 0o644))

	err = writeSecretsVault(vaultDir, map[string][]byte{"api-key": []byte("two")})
	require.Error(t, err)
}

func TestBuilder_Build_ExtendSettings(t *testing.T) {
	cfg := newTestConfig(t)
	b := NewBuilder(cfg)
	task := &tasks.Task{ID: "task-1"}

	called := false
	extend := func() (map[string]map[string]any, map[string][]byte, error) {
		called = true
		return map[string]map[string]any{"engine.json": {"k": "v"}}, map[string][]byte{"s1": []byte("x")}, nil
	}

	plan, err := b.Build(task, "echo ok", "local", nil, extend, nil)
	require.NoError(t, err)
	assert.True(t, called)

	_, err = os.Stat(filepath.Join(plan.RuntimeDir, "engine.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(plan.RuntimeDir, "secrets", "s1"))
	require.NoError(t, err)
}

func TestCoerceJSON_NonSerializableBecomesString(t *testing.T) {
	ch := make(chan int)
	coerced := coerceJSON(map[string]any{"chan": ch})
	_, err := json.Marshal(coerced)
	require.NoError(t, err)
}
