package audiocache

import (
	"context"
	"sync"
)

// DefaultMaxEntries bounds the in-memory store. Oldest entries are evicted
// first once the bound is reached.
const DefaultMaxEntries = 1024

// Memory is an in-process [Store], used when no shared cache backend is
// configured. Safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	order      []string
	maxEntries int
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-memory store holding at most maxEntries blobs;
// maxEntries <= 0 uses [DefaultMaxEntries].
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
	}
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

// Put implements [Store].
func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		for len(m.entries) >= m.maxEntries && len(m.order) > 0 {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = e
	return nil
}

// Len reports the number of cached blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
