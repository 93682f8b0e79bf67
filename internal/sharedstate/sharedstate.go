// Package sharedstate implements the cross-process counters, flags and
// override map the rest of the manager coordinates through. It is a
// namespaced handle over a pluggable key-value Backend with atomic
// compare-and-set and increment primitives.
package sharedstate

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Known keys, always addressed under a common prefix.
const (
	KeySyncExecution    = "sync_execution"
	KeySyncSemaphore    = "sync_semaphore"
	KeyExecutorCount    = "executor_count"
	KeySettingsOverride = "settings_override"
)

// ErrTransient marks a backend failure callers of CAS/Add should retry at
// a higher level.
type ErrTransient struct{ Err error }

func (e *ErrTransient) Error() string { return fmt.Sprintf("sharedstate: transient fault: %v", e.Err) }
func (e *ErrTransient) Unwrap() error { return e.Err }

// Backend is the linearizable-per-key storage primitive SharedState is
// built on. Values are opaque bytes; Client treats counters as signed
// 64-bit integers encoded in decimal.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	// CAS atomically replaces key's value with newVal if and only if its
	// current value equals expected (both nil means "absent"). It always
	// returns the value observed prior to the operation.
	CAS(key string, expected, newVal []byte) (previous []byte, err error)
	// Add atomically adds delta to the integer stored at key (treating an
	// absent key as 0) and returns the new value.
	Add(key string, delta int64) (int64, error)
	// Reset clears every key under the given prefix.
	Reset(prefix string) error
}

// Client is a namespaced view over a Backend.
type Client struct {
	backend Backend
	prefix  string
}

// New returns a Client scoped to keyPrefix.
func New(backend Backend, keyPrefix string) *Client {
	return &Client{backend: backend, prefix: keyPrefix}
}

func (c *Client) key(name string) string { return c.prefix + ":" + name }

// GetInt reads an integer counter/flag, defaulting to 0 if absent.
func (c *Client) GetInt(key string) (int64, error) {
	raw, ok, err := c.backend.Get(c.key(key))
	if err != nil {
		return 0, &ErrTransient{err}
	}
	if !ok {
		return 0, nil
	}
	return parseInt(raw)
}

// SetInt writes an integer counter/flag.
func (c *Client) SetInt(key string, v int64) error {
	if err := c.backend.Set(c.key(key), encodeInt(v)); err != nil {
		return &ErrTransient{err}
	}
	return nil
}

// CAS atomically sets key to newVal if its current value is expected,
// returning the value observed prior to the operation.
func (c *Client) CAS(key string, expected, newVal int64) (int64, error) {
	prev, err := c.backend.CAS(c.key(key), encodeInt(expected), encodeInt(newVal))
	if err != nil {
		return 0, &ErrTransient{err}
	}
	if prev == nil {
		return 0, nil
	}
	return parseInt(prev)
}

// Add atomically increments/decrements key by delta and returns the
// post-value.
func (c *Client) Add(key string, delta int64) (int64, error) {
	v, err := c.backend.Add(c.key(key), delta)
	if err != nil {
		return 0, &ErrTransient{err}
	}
	return v, nil
}

// Overrides returns the most recently saved effective-settings view.
func (c *Client) Overrides() (map[string]any, error) {
	raw, ok, err := c.backend.Get(c.key(KeySettingsOverride))
	if err != nil {
		return nil, &ErrTransient{err}
	}
	if !ok || len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("sharedstate: corrupt overrides: %w", err)
	}
	return m, nil
}

// SetOverrides replaces the saved effective-settings view.
func (c *Client) SetOverrides(m map[string]any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sharedstate: cannot encode overrides: %w", err)
	}
	if err := c.backend.Set(c.key(KeySettingsOverride), data); err != nil {
		return &ErrTransient{err}
	}
	return nil
}

// Reset zeroes the known counters/flags and clears the override map,
// matching BaseManager.reset(). It does not drain in-flight scans or the
// control bus; callers must ensure quiescence first (see DESIGN.md).
func (c *Client) Reset() error {
	if err := c.backend.Reset(c.prefix); err != nil {
		return &ErrTransient{err}
	}
	return nil
}

// encodeInt encodes zero as a nil/absent value so that CAS(key, 0, ...)
// matches a key that has never been written, exactly as GetInt already
// treats an absent key as 0. Backend.CAS only has to implement one
// absence convention rather than special-case "present but zero".
func encodeInt(v int64) []byte {
	if v == 0 {
		return nil
	}
	return []byte(strconv.FormatInt(v, 10))
}

func parseInt(raw []byte) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sharedstate: corrupt integer value %q: %w", raw, err)
	}
	return v, nil
}
