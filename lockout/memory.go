package lockout

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryMaxEntries = 10000

// MemoryStore keeps lockout state in process memory.
type MemoryStore struct {
	mu         sync.Mutex
	states     map[string]State
	maxEntries int
}

// NewMemoryStore returns an empty MemoryStore. When more than maxEntries
// identifiers are tracked, expired entries are swept on the next write.
// maxEntries <= 0 selects the default.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryMaxEntries
	}
	return &MemoryStore{
		states:     make(map[string]State),
		maxEntries: maxEntries,
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string, now time.Time, cfg Config) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[key]
	if !ok {
		return State{}, nil
	}
	if s.ExpiredAt(now, cfg) {
		delete(m.states, key)
		return State{}, nil
	}
	return s, nil
}

// RecordFailure implements Store.
func (m *MemoryStore) RecordFailure(_ context.Context, key string, now time.Time, cfg Config) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := ApplyFailure(m.states[key], now, cfg)
	m.states[key] = s

	if len(m.states) > m.maxEntries {
		for k, v := range m.states {
			if v.ExpiredAt(now, cfg) {
				delete(m.states, k)
			}
		}
	}
	return s, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of tracked identifiers.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
