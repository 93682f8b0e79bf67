package sharedstate

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
)

// MemoryBackend is an in-process Backend, used by single-manager
// deployments and all package tests. It is linearizable per key via a
// single mutex.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBackend) CAS(key string, expected, newVal []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.data[key]
	var prev []byte
	if ok {
		prev = current
	}

	matches := (!ok && expected == nil) || (ok && bytes.Equal(current, expected))
	if matches {
		b.data[key] = append([]byte(nil), newVal...)
	}
	return prev, nil
}

func (b *MemoryBackend) Add(key string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var current int64
	if raw, ok := b.data[key]; ok {
		current, _ = strconv.ParseInt(string(raw), 10, 64)
	}
	current += delta
	b.data[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

func (b *MemoryBackend) Reset(prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.data {
		if strings.HasPrefix(k, prefix+":") {
			delete(b.data, k)
		}
	}
	return nil
}
