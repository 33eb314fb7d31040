package history

import (
	"context"
	"sync"
)

type inMemory struct {
	mu         sync.RWMutex
	turns      []Turn
	next       uint64
	maxHistory int
}

// NewMemoryStore returns a Store retaining at most maxHistory turns.
// maxHistory <= 0 means unbounded.
func NewMemoryStore(maxHistory int) Store {
	return &inMemory{
		next:       1,
		maxHistory: maxHistory,
	}
}

func (m *inMemory) Append(ctx context.Context, role Role, text string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord := m.next
	m.next++
	m.turns = append(m.turns, Turn{Role: role, Text: text, Ordinal: ord})
	if m.maxHistory > 0 && len(m.turns) > m.maxHistory {
		m.turns = m.turns[len(m.turns)-m.maxHistory:]
	}
	return ord, nil
}

func (m *inMemory) Recent(ctx context.Context, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *inMemory) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns), nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}
