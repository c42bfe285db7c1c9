package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// MemoryStore is an in-memory, thread-safe Storage implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get implements Storage.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements Storage.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Storage.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Scan implements Scanner.
func (m *MemoryStore) Scan(_ context.Context, prefix string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []Item
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			items = append(items, Item{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}
