package store

import (
	"context"
	"sync"
)

// MemoryStore keeps visitor state in process. State is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, visitorID, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[visitorID][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(_ context.Context, visitorID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.data[visitorID]
	if !ok {
		keys = make(map[string]string)
		m.data[visitorID] = keys
	}
	keys[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, visitorID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	values, ok := m.data[visitorID]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(values, k)
	}
	if len(values) == 0 {
		delete(m.data, visitorID)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
