package flow

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"
)

var errWriteFailed = errors.New("kv write failed")

// MemoryKV is an in-process KV used in tests and demo builds. TTLs are
// ignored; entries live until deleted.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string

	// FailWrites makes every Set return an error, for exercising the
	// best-effort swallow path.
	FailWrites bool
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	if m.FailWrites {
		return errWriteFailed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
