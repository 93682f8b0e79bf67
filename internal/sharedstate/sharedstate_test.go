package sharedstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetSetInt(t *testing.T) {
	c := New(NewMemoryBackend(), "p")

	v, err := c.GetInt("counter")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, c.SetInt("counter", 42))
	v, err = c.GetInt("counter")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestClient_CAS(t *testing.T) {
	c := New(NewMemoryBackend(), "p")

	prev, err := c.CAS(KeySyncExecution, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), prev)

	// Second CAS against the same expected value fails (reports the now-1 value).
	prev, err = c.CAS(KeySyncExecution, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), prev)
}

func TestClient_Add(t *testing.T) {
	c := New(NewMemoryBackend(), "p")

	v, err := c.Add(KeySyncSemaphore, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = c.Add(KeySyncSemaphore, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestClient_Overrides(t *testing.T) {
	c := New(NewMemoryBackend(), "p")

	m, err := c.Overrides()
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, c.SetOverrides(map[string]any{"FLOW_X": "y"}))
	m, err = c.Overrides()
	require.NoError(t, err)
	assert.Equal(t, "y", m["FLOW_X"])
}

func TestClient_Reset(t *testing.T) {
	c := New(NewMemoryBackend(), "p")
	require.NoError(t, c.SetInt(KeySyncSemaphore, 3))
	require.NoError(t, c.Reset())

	v, err := c.GetInt(KeySyncSemaphore)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestClient_PrefixIsolation(t *testing.T) {
	backend := NewMemoryBackend()
	a := New(backend, "a")
	b := New(backend, "b")

	require.NoError(t, a.SetInt("x", 1))
	v, err := b.GetInt("x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v, "separate prefixes must not see each other's keys")
}
