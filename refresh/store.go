package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a jti.
	ErrNotFound = errors.New("refresh: record not found")
	// ErrAlreadyConsumed is returned when consumption loses the
	// compare-and-set because the record was consumed before.
	ErrAlreadyConsumed = errors.New("refresh: record already consumed")
	// ErrDuplicate is returned by Put for a jti that is already stored.
	ErrDuplicate = errors.New("refresh: duplicate jti")
	// ErrInvalidRecord is returned by Put for records missing a jti or user.
	ErrInvalidRecord = errors.New("refresh: invalid record")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("refresh: store unavailable")
)

// Record is the ledger entry for one refresh token.
type Record struct {
	JTI          string     `json:"jti"`
	UserID       string     `json:"userId"`
	IssuedAt     time.Time  `json:"issuedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	ConsumedAt   *time.Time `json:"consumedAt,omitempty"`
	SupersededBy string     `json:"supersededBy,omitempty"`
}

// Consumed reports whether the record was rotated or revoked.
func (r Record) Consumed() bool {
	return r.ConsumedAt != nil
}

// Expired reports whether now is past ExpiresAt.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r Record) validate() error {
	if r.JTI == "" || r.UserID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Store persists Records.
type Store interface {
	// Put inserts a new record.
	Put(ctx context.Context, rec Record) error
	// Get returns the record for jti or ErrNotFound.
	Get(ctx context.Context, jti string) (Record, error)
	// MarkConsumed sets ConsumedAt and SupersededBy if ConsumedAt is unset.
	// It returns ErrAlreadyConsumed if it was set and ErrNotFound if jti is unknown.
	MarkConsumed(ctx context.Context, jti, successor string, at time.Time) error
	// Rotate consumes jti with next.JTI as successor and inserts next, as
	// one atomic step with MarkConsumed's error semantics.
	Rotate(ctx context.Context, jti string, next Record, at time.Time) error
	// RevokeAllForUser consumes every unconsumed record of userID without a
	// successor and returns how many it changed.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
	// DeleteExpired removes records that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
