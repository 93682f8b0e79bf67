package engine

import (
	"testing"

	"github.com/cuemby/flowexec/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_LoadsBuiltins(t *testing.T) {
	cfg := config.Default()
	r, err := NewRegistry(&cfg)
	require.NoError(t, err)

	eng, err := r.ExecutionEngine("bash")
	require.NoError(t, err)
	assert.Equal(t, "bash", eng.Name())

	assert.Equal(t, "local", r.ExecutorHandle().Name())
}

func TestNewRegistry_UnsupportedEngine(t *testing.T) {
	cfg := config.Default()
	cfg.ExecutionEngines = []string{"not-a-real-engine"}

	_, err := NewRegistry(&cfg)
	var target *ErrUnsupportedEngine
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "execution", target.Kind)
}

func TestRegistry_Reload_RebindsExecutor(t *testing.T) {
	cfg := config.Default()
	r, err := NewRegistry(&cfg)
	require.NoError(t, err)

	cfg.Executor.Name = "queue"
	require.NoError(t, r.Reload(&cfg))
	assert.Equal(t, "queue", r.ExecutorHandle().Name())
}

func TestBashEngine_ZeroWork(t *testing.T) {
	out, zeroWork, err := BashEngine{}.Evaluate("   ", EvalContext{})
	require.NoError(t, err)
	assert.True(t, zeroWork)
	assert.Empty(t, out)
}

func TestBashEngine_PassesProgramThrough(t *testing.T) {
	out, zeroWork, err := BashEngine{}.Evaluate("echo ok", EvalContext{})
	require.NoError(t, err)
	assert.False(t, zeroWork)
	assert.Equal(t, "echo ok", out)
}

func TestTemplateEngine_Evaluate(t *testing.T) {
	out, err := TemplateEngine{}.Evaluate("hello {{.TaskID}}", EvalContext{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "hello t1", out)
}

func TestTemplateEngine_ParseError(t *testing.T) {
	_, err := TemplateEngine{}.Evaluate("{{.Bad", EvalContext{})
	require.Error(t, err)
	var target *EvaluationError
	assert.ErrorAs(t, err, &target)
}

func TestTemplateExecutionEngine_NeverZeroWork(t *testing.T) {
	out, zeroWork, err := TemplateExecutionEngine{}.Evaluate("", EvalContext{})
	require.NoError(t, err)
	assert.False(t, zeroWork)
	assert.Empty(t, out)
}
