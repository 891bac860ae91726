// Package storage persists the attendance state as three independent JSON
// documents in a key-value store.
//
// Backends:
//   - FileKV:   one file per key under a directory (default)
//   - RedisKV:  a Redis server, keys namespaced by a prefix
//   - MemoryKV: process memory, for tests and throwaway runs
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by KV.Get for keys that were never written.
var ErrNotFound = errors.New("storage: key not found")

// KV is the minimal key-value contract the gateway needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// MemoryKV keeps values in a map. Safe for concurrent use.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Close() error { return nil }
