package permission

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrTableFrozen   = errors.New("permission: role table frozen")
	ErrEmptyRole     = errors.New("permission: role name empty")
	ErrDuplicateRole = errors.New("permission: role already registered")
	ErrInvalidRank   = errors.New("permission: rank must be positive")
)

type roleDef struct {
	label string
	rank  int
	order int
}

// RoleTable maps roles to display labels and ranks.
//
// RoleTable instances are configured during initialization and then frozen.
type RoleTable struct {
	mu     sync.RWMutex
	roles  map[Role]roleDef
	frozen bool
}

// NewRoleTable returns an empty, unfrozen table.
func NewRoleTable() *RoleTable {
	return &RoleTable{roles: make(map[Role]roleDef)}
}

// Register adds role. It fails once the table is frozen.
func (t *RoleTable) Register(role Role, label string, rank int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	if role == "" {
		return ErrEmptyRole
	}
	if rank <= RankUnknown {
		return ErrInvalidRank
	}
	if _, exists := t.roles[role]; exists {
		return ErrDuplicateRole
	}
	if label == "" {
		label = string(role)
	}

	t.roles[role] = roleDef{label: label, rank: rank, order: len(t.roles)}
	return nil
}

// Freeze prevents further registrations.
func (t *RoleTable) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Count returns the number of registered roles.
func (t *RoleTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roles)
}

func (t *RoleTable) Known(role Role) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.roles[role]
	return ok
}

func (t *RoleTable) Rank(role Role) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roles[role].rank
}

func (t *RoleTable) Label(role Role) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if def, ok := t.roles[role]; ok {
		return def.label
	}
	return string(role)
}

// Roles lists registered roles by rank descending, then registration order.
func (t *RoleTable) Roles() []Role {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Role, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := t.roles[out[i]], t.roles[out[j]]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		return a.order < b.order
	})
	return out
}

// Allows reports whether role is listed in required or outranks the lowest
// required role. Unknown required roles only match exactly. An empty
// required list denies.
func (t *RoleTable) Allows(role Role, required ...Role) bool {
	if len(required) == 0 {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	minRank := -1
	for _, r := range required {
		if r == role {
			return true
		}
		def, ok := t.roles[r]
		if !ok {
			continue
		}
		if minRank < 0 || def.rank < minRank {
			minRank = def.rank
		}
	}
	if minRank < 0 {
		return false
	}

	own, ok := t.roles[role]
	return ok && own.rank > minRank
}
