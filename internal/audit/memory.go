package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// MemoryLog is an in-memory, thread-safe Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemoryLog creates a MemoryLog holding only the genesis entry.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{now: func() time.Time { return time.Now().UTC() }}
	l.entries = append(l.entries, genesis(l.now()))
	return l
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.entries[len(l.entries)-1]
	entry := newEntry(len(l.entries), l.now(), rec, prev.Hash)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("audit entry %d: %w", index, model.ErrNotFound)
	}
	return l.entries[index], nil
}

// Range implements Log.
func (l *MemoryLog) Range(_ context.Context, from, limit int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from < 0 || from > len(l.entries) {
		return nil, fmt.Errorf("index %d out of range", from)
	}
	end := from + limit
	if limit <= 0 || end > len(l.entries) {
		end = len(l.entries)
	}
	return append([]*Entry(nil), l.entries[from:end]...), nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyChain(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}
