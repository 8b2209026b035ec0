package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("directory: user not found")
	// ErrDuplicateEmail is returned by CreateUser for an email already in use.
	ErrDuplicateEmail = errors.New("directory: email already registered")
	// ErrInvalidUser is returned by CreateUser for incomplete input.
	ErrInvalidUser = errors.New("directory: invalid user")
)

// Status is an account's login eligibility.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// User is the credential record the Engine consumes.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Role         string    `json:"role"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Active reports whether the account may log in. Records written before
// statuses existed carry an empty status and count as active.
func (u User) Active() bool {
	return u.Status == StatusActive || u.Status == ""
}

// NewUser is the input to CreateUser. Email must already be normalised.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Status       Status
}

// Directory is the user repository used by the Engine.
type Directory interface {
	FindUserByEmail(ctx context.Context, normalizedEmail string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	CreateUser(ctx context.Context, in NewUser) (User, error)
}

// NormalizeEmail trims and lower-cases email for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in NewUser) validate() error {
	if in.Email == "" || in.Role == "" || in.PasswordHash == "" {
		return ErrInvalidUser
	}
	return nil
}
