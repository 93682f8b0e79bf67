package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoPathReturnsDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", s.Executor.Name)
	assert.Equal(t, []string{"bash"}, s.ExecutionEngines)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  name: queue\nmanager_keep_data: true\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "queue", s.Executor.Name)
	assert.True(t, s.ManagerKeepData)
	// Fields the YAML doesn't touch keep their defaults.
	assert.Equal(t, "./data", s.Executor.DataDir)
}

func TestLoad_EnvironmentOverlaysIntoExtras(t *testing.T) {
	t.Setenv("FLOW_API_TIMEOUT", "30")
	t.Setenv("RESOLWE_DEBUG", "true")
	t.Setenv("CELERY_BROKER", "redis://localhost")
	t.Setenv("UNRELATED_VAR", "ignored")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(30), s.Extras["FLOW_API_TIMEOUT"])
	assert.Equal(t, true, s.Extras["RESOLWE_DEBUG"])
	assert.Equal(t, "redis://localhost", s.Extras["CELERY_BROKER"])
	_, ok := s.Extras["UNRELATED_VAR"]
	assert.False(t, ok)
}

func TestSettings_ToMap(t *testing.T) {
	s := Default()
	s.Extras["FLOW_CUSTOM"] = "value"

	m := s.ToMap()
	executor, ok := m["FLOW_EXECUTOR"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "local", executor["NAME"])
	assert.Equal(t, "value", m["FLOW_CUSTOM"])
	assert.Equal(t, "localhost", m["RESOLWE_HOST_URL"])
}

func TestMerge_LaterOverridesTakePrecedence(t *testing.T) {
	base := map[string]any{"A": 1, "B": 2}
	result := Merge(base, map[string]any{"B": 20}, map[string]any{"C": 3, "B": 200})

	assert.Equal(t, 1, result["A"])
	assert.Equal(t, 200, result["B"])
	assert.Equal(t, 3, result["C"])
	// base is not mutated.
	assert.Equal(t, 2, base["B"])
}

func TestCoerceEnvValue(t *testing.T) {
	assert.Equal(t, true, coerceEnvValue("true"))
	assert.Equal(t, int64(42), coerceEnvValue("42"))
	assert.Equal(t, "plain-string", coerceEnvValue("plain-string"))
}
