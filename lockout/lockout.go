package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxAttempts     = 5
	DefaultWindow          = 15 * time.Minute
	DefaultLockoutDuration = 5 * time.Minute
)

var (
	// ErrUnavailable wraps store failures.
	ErrUnavailable = errors.New("lockout: store unavailable")
	// ErrInvalidConfig is returned by New.
	ErrInvalidConfig = errors.New("lockout: invalid config")
)

// Config is the lockout policy.
type Config struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
}

// DefaultConfig returns 5 attempts in 15 minutes, then a 5 minute lockout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     DefaultMaxAttempts,
		Window:          DefaultWindow,
		LockoutDuration: DefaultLockoutDuration,
	}
}

// Validate checks that every field is positive.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: MaxAttempts must be > 0", ErrInvalidConfig)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: Window must be > 0", ErrInvalidConfig)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("%w: LockoutDuration must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Store persists State per key. Implementations must apply expiry and the
// failure transition atomically with respect to other calls on the same key.
type Store interface {
	// Load returns the current state, deleting it first if it has expired.
	Load(ctx context.Context, key string, now time.Time, cfg Config) (State, error)
	// RecordFailure applies one failed attempt and returns the new state.
	RecordFailure(ctx context.Context, key string, now time.Time, cfg Config) (State, error)
	// Delete clears key.
	Delete(ctx context.Context, key string) error
}

// Decision is the result of CanAttempt.
type Decision struct {
	Allowed           bool
	Locked            bool
	RemainingAttempts int
	RetryAfter        time.Duration
	LockoutUntil      time.Time
}

// Outcome is the result of RecordFailedAttempt.
type Outcome struct {
	Locked            bool
	LockoutUntil      time.Time
	RemainingAttempts int
	Attempts          int
}

// Tracker applies Config over a Store.
type Tracker struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New returns a Tracker over store.
func New(store Store, cfg Config, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the policy in force.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Normalize trims and lower-cases an identifier.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CanAttempt reports whether identifier may try to log in.
func (t *Tracker) CanAttempt(ctx context.Context, identifier string) (Decision, error) {
	key := Normalize(identifier)
	if key == "" {
		return Decision{Allowed: true, RemainingAttempts: t.cfg.MaxAttempts}, nil
	}

	now := t.now()
	state, err := t.store.Load(ctx, key, now, t.cfg)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if state.LockedAt(now) {
		return Decision{
			Locked:       true,
			RetryAfter:   state.LockoutUntil.Sub(now),
			LockoutUntil: state.LockoutUntil,
		}, nil
	}
	return Decision{
		Allowed:           true,
		RemainingAttempts: remaining(state, t.cfg),
	}, nil
}

// RecordFailedAttempt counts one failed credential check for identifier.
// Call it exactly once per failure.
func (t *Tracker) RecordFailedAttempt(ctx context.Context, identifier string) (Outcome, error) {
	key := Normalize(identifier)
	if key == "" {
		return Outcome{RemainingAttempts: t.cfg.MaxAttempts}, nil
	}

	state, err := t.store.RecordFailure(ctx, key, t.now(), t.cfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := Outcome{
		Attempts:          state.Count,
		RemainingAttempts: remaining(state, t.cfg),
	}
	if !state.LockoutUntil.IsZero() {
		out.Locked = true
		out.LockoutUntil = state.LockoutUntil
	}
	return out, nil
}

// Reset clears identifier after a successful login or an operator unlock.
func (t *Tracker) Reset(ctx context.Context, identifier string) error {
	key := Normalize(identifier)
	if key == "" {
		return nil
	}
	if err := t.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func remaining(s State, cfg Config) int {
	if !s.LockoutUntil.IsZero() {
		return 0
	}
	if n := cfg.MaxAttempts - s.Count; n > 0 {
		return n
	}
	return 0
}
