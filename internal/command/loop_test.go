package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/flowexec/internal/barrier"
	"github.com/cuemby/flowexec/internal/bus"
	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/engine"
	"github.com/cuemby/flowexec/internal/sandbox"
	"github.com/cuemby/flowexec/internal/scanner"
	"github.com/cuemby/flowexec/internal/sharedstate"
	"github.com/cuemby/flowexec/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopScheduler struct{}

func (nopScheduler) Schedule(*tasks.Task, *sandbox.Plan, string, int) {}

func newTestLoop(t *testing.T, cfg *config.Settings) (*Loop, bus.Bus, *sharedstate.Client) {
	t.Helper()
	store := tasks.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	registry, err := engine.NewRegistry(cfg)
	require.NoError(t, err)
	builder := sandbox.NewBuilder(cfg)
	scan := scanner.New(store, registry, builder, nopScheduler{})

	b := bus.NewMemoryBus()
	state := sharedstate.New(sharedstate.NewMemoryBackend(), "test")
	coord := barrier.New(state)

	return New(b, "control", state, coord, scan, cfg, nil), b, state
}

func newTestConfig(t *testing.T) *config.Settings {
	t.Helper()
	cfg := config.Default()
	cfg.Executor.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Executor.RuntimeDir = filepath.Join(t.TempDir(), "runtime")
	return &cfg
}

func TestHandleCommunicate_AlwaysDecrementsSemaphore(t *testing.T) {
	cfg := newTestConfig(t)
	l, _, state := newTestLoop(t, cfg)

	require.NoError(t, state.SetInt(sharedstate.KeySyncSemaphore, 1))
	require.NoError(t, l.HandleMessage(bus.Message{Command: bus.CommandCommunicate}))

	v, err := state.GetInt(sharedstate.KeySyncSemaphore)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestHandleFinish_DecrementsExecutorCountAndSemaphore(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ManagerKeepData = true
	l, _, state := newTestLoop(t, cfg)

	require.NoError(t, state.SetInt(sharedstate.KeyExecutorCount, 1))
	require.NoError(t, state.SetInt(sharedstate.KeySyncSemaphore, 1))

	require.NoError(t, l.HandleMessage(bus.Message{Command: bus.CommandFinish, DataID: "t1"}))

	count, err := state.GetInt(sharedstate.KeyExecutorCount)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	sem, err := state.GetInt(sharedstate.KeySyncSemaphore)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sem)
}

func TestHandleFinish_SpawnedFollowUpBracketsSemaphore(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ManagerKeepData = true
	l, _, state := newTestLoop(t, cfg)

	require.NoError(t, state.SetInt(sharedstate.KeyExecutorCount, 1))
	require.NoError(t, state.SetInt(sharedstate.KeySyncSemaphore, 1))

	require.NoError(t, l.HandleMessage(bus.Message{Command: bus.CommandFinish, DataID: "t1", Spawned: true}))

	sem, err := state.GetInt(sharedstate.KeySyncSemaphore)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sem, "spawned follow-up's +1/-1 pair must net to zero alongside the base -1")
}

func TestHandleFinish_RemovesRuntimeDirUnlessKeepData(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ManagerKeepData = false
	l, _, _ := newTestLoop(t, cfg)

	taskDir := filepath.Join(cfg.Executor.RuntimeDir, "t1")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))

	require.NoError(t, l.HandleMessage(bus.Message{Command: bus.CommandFinish, DataID: "t1"}))

	_, err := os.Stat(taskDir)
	assert.True(t, os.IsNotExist(err))
}

func TestHandleFinish_KeepDataLeavesRuntimeDir(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ManagerKeepData = true
	l, _, _ := newTestLoop(t, cfg)

	taskDir := filepath.Join(cfg.Executor.RuntimeDir, "t1")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))

	require.NoError(t, l.HandleMessage(bus.Message{Command: bus.CommandFinish, DataID: "t1"}))

	_, err := os.Stat(taskDir)
	assert.NoError(t, err)
}

func TestCommunicate_IncrementsSemaphoreAndSends(t *testing.T) {
	cfg := newTestConfig(t)
	l, b, state := newTestLoop(t, cfg)

	require.NoError(t, l.Communicate(bus.CommunicateExtra{Verbosity: 2}, nil, false))

	v, err := state.GetInt(sharedstate.KeySyncSemaphore)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	msg, ok, err := b.Recv("control")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bus.CommandCommunicate, msg.Command)
	assert.Equal(t, 2, msg.Extra.Verbosity)
}

func TestCommunicate_SaveOverridesPersistsConfig(t *testing.T) {
	cfg := newTestConfig(t)
	l, _, state := newTestLoop(t, cfg)

	require.NoError(t, l.Communicate(bus.CommunicateExtra{}, nil, true))

	overrides, err := state.Overrides()
	require.NoError(t, err)
	assert.NotEmpty(t, overrides)
}
