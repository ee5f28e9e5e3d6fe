package params

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and local runs.
type MemoryStore struct {
	namespace Namespace

	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(namespace Namespace) *MemoryStore {
	return &MemoryStore{
		namespace: namespace,
		values:    make(map[string]string),
	}
}

// Put stores the value under the namespaced path
func (m *MemoryStore) Put(_ context.Context, key, value, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[m.namespace.Path(key)] = value
	return nil
}

// Get returns the most recently written value for key
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := m.namespace.Path(key)
	v, ok := m.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// List returns a copy of every stored value keyed by short key
func (m *MemoryStore) List(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.values))
	for name, v := range m.values {
		out[m.namespace.Key(name)] = v
	}
	return out, nil
}

// Paths returns the full parameter names written so far
func (m *MemoryStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.values))
	for name := range m.values {
		paths = append(paths, name)
	}
	return paths
}
