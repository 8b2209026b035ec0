package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Directory.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemory returns an empty Memory directory.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// Add stores u as-is, replacing any user with the same id. Seeding helper.
func (m *Memory) Add(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byID[u.ID]; ok {
		delete(m.byEmail, NormalizeEmail(prev.Email))
	}
	m.byID[u.ID] = u
	m.byEmail[NormalizeEmail(u.Email)] = u.ID
}

// SetStatus changes a user's status.
func (m *Memory) SetStatus(id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = m.now()
	m.byID[id] = u
	return nil
}

// FindUserByEmail implements Directory.
func (m *Memory) FindUserByEmail(_ context.Context, normalizedEmail string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizedEmail]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.byID[id], nil
}

// FindUserByID implements Directory.
func (m *Memory) FindUserByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// SetPasswordHash implements Directory.
func (m *Memory) SetPasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = m.now()
	m.byID[id] = u
	return nil
}

// CreateUser implements Directory.
func (m *Memory) CreateUser(_ context.Context, in NewUser) (User, error) {
	if err := in.validate(); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[in.Email]; exists {
		return User{}, ErrDuplicateEmail
	}
	u := newUserRecord(in, m.now())
	m.byID[u.ID] = u
	m.byEmail[in.Email] = u.ID
	return u, nil
}

func newUserRecord(in NewUser, now time.Time) User {
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	return User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
