package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. State is lost on restart,
// so it suits tests and short-lived tools only.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return putLocked(m.records, rec)
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, jti string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[jti]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// MarkConsumed implements Store.
func (m *MemoryStore) MarkConsumed(_ context.Context, jti, successor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return consumeLocked(m.records, jti, successor, at)
}

// Rotate implements Store.
func (m *MemoryStore) Rotate(_ context.Context, jti string, next Record, at time.Time) error {
	if err := next.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return rotateLocked(m.records, jti, next, at)
}

// RevokeAllForUser implements Store.
func (m *MemoryStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(revokeLocked(m.records, userID, at)), nil
}

// DeleteExpired implements Store.
func (m *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(deleteExpiredLocked(m.records, before)), nil
}

// The *Locked helpers implement the ledger rules over a plain map. Callers
// hold the store's lock.

func putLocked(records map[string]Record, rec Record) error {
	if _, exists := records[rec.JTI]; exists {
		return ErrDuplicate
	}
	records[rec.JTI] = cloneRecord(rec)
	return nil
}

func consumeLocked(records map[string]Record, jti, successor string, at time.Time) error {
	rec, ok := records[jti]
	if !ok {
		return ErrNotFound
	}
	if rec.Consumed() {
		return ErrAlreadyConsumed
	}
	consumedAt := at
	rec.ConsumedAt = &consumedAt
	rec.SupersededBy = successor
	records[jti] = rec
	return nil
}

func rotateLocked(records map[string]Record, jti string, next Record, at time.Time) error {
	if _, exists := records[next.JTI]; exists {
		return ErrDuplicate
	}
	if err := consumeLocked(records, jti, next.JTI, at); err != nil {
		return err
	}
	records[next.JTI] = cloneRecord(next)
	return nil
}

func revokeLocked(records map[string]Record, userID string, at time.Time) []string {
	var changed []string
	for jti, rec := range records {
		if rec.UserID != userID || rec.Consumed() {
			continue
		}
		consumedAt := at
		rec.ConsumedAt = &consumedAt
		records[jti] = rec
		changed = append(changed, jti)
	}
	return changed
}

func deleteExpiredLocked(records map[string]Record, before time.Time) []Record {
	var removed []Record
	for jti, rec := range records {
		if rec.ExpiresAt.Before(before) {
			removed = append(removed, rec)
			delete(records, jti)
		}
	}
	return removed
}

func cloneRecord(rec Record) Record {
	if rec.ConsumedAt != nil {
		at := *rec.ConsumedAt
		rec.ConsumedAt = &at
	}
	return rec
}
