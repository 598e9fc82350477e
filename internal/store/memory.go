package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryKV is an in-process KV backend for tests and ephemeral runs.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // project → kind → document
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// NewMemory returns a Store backed by process memory.
func NewMemory() *RecordStore {
	return NewRecordStore(NewMemoryKV())
}

func (m *MemoryKV) Get(_ context.Context, projectID, kind string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[projectID][kind]
	if !ok {
		return nil, nil
	}
	return slices.Clone(data), nil
}

func (m *MemoryKV) Put(_ context.Context, projectID, kind string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[projectID] == nil {
		m.data[projectID] = make(map[string][]byte)
	}
	m.data[projectID][kind] = slices.Clone(data)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, projectID string, kinds ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range kinds {
		delete(m.data[projectID], k)
	}
	return nil
}

func (m *MemoryKV) Projects(_ context.Context, kind string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, kinds := range m.data {
		if _, ok := kinds[kind]; ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryKV) Migrate(context.Context) error { return nil }

func (m *MemoryKV) Close() error { return nil }
