package flows

import (
	"context"
	"errors"
	"time"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/refresh"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLocked
	LoginFailureInvalidCredentials
	LoginFailureInactive
	LoginFailureLockoutBackend
	LoginFailureDirectory
	LoginFailureHash
	LoginFailureRevoke
	LoginFailureIssue
	LoginFailurePersist
)

// LoginResult carries either the authenticated user and tokens or failure
// metadata.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	Identifier string
	User       directory.User
	Tokens     TokenPair

	// Set for LoginFailureLocked.
	RetryAfter   time.Duration
	LockoutUntil time.Time
	// Set when a failed attempt was recorded.
	RemainingAttempts int
	// JustLocked is true when this attempt tripped the lockout.
	JustLocked bool

	Revoked  int
	Rehashed bool
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	CanAttempt    func(ctx context.Context, identifier string) (lockout.Decision, error)
	RecordFailure func(ctx context.Context, identifier string) (lockout.Outcome, error)
	ResetAttempts func(ctx context.Context, identifier string) error

	FindUserByEmail func(ctx context.Context, normalizedEmail string) (directory.User, error)

	// VerifyPassword may fail only when ctx ends while waiting for a hash slot.
	VerifyPassword func(ctx context.Context, plain, hash string) (bool, error)
	// DummyVerify burns a comparable amount of CPU for unknown identifiers.
	DummyVerify func(ctx context.Context, plain string)
	// UpgradeHash rehashes plain for user when its stored hash is outdated.
	// It reports whether a new hash was written. Nil disables upgrades.
	UpgradeHash func(ctx context.Context, user directory.User, plain string) (bool, error)

	RevokeAllForUser func(ctx context.Context, userID string, at time.Time) (int, error)
	PutRefresh       func(ctx context.Context, rec refresh.Record) error
	Issue            IssueDeps

	Warn func(msg string, args ...any)
}

// RunLogin authenticates email and password.
//
// Order: lockout check, directory lookup, status check, password check,
// then lockout reset, prior lineage revocation and issuance. Unknown
// identifiers, inactive accounts and wrong passwords all count as failed
// attempts.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(context.Context, string) {}
	}

	identifier := directory.NormalizeEmail(email)
	res := LoginResult{Identifier: identifier}

	decision, err := deps.CanAttempt(ctx, identifier)
	if err != nil {
		res.Failure, res.Err = LoginFailureLockoutBackend, err
		return res
	}
	if decision.Locked {
		res.Failure = LoginFailureLocked
		res.RetryAfter = decision.RetryAfter
		res.LockoutUntil = decision.LockoutUntil
		return res
	}

	user, err := directory.User{}, directory.ErrNotFound
	if identifier != "" {
		user, err = deps.FindUserByEmail(ctx, identifier)
	}
	switch {
	case errors.Is(err, directory.ErrNotFound):
		deps.DummyVerify(ctx, password)
		return recordFailure(ctx, res, LoginFailureInvalidCredentials, deps)
	case err != nil:
		res.Failure, res.Err = LoginFailureDirectory, err
		return res
	}
	res.User = user

	if !user.Active() {
		return recordFailure(ctx, res, LoginFailureInactive, deps)
	}

	ok, err := deps.VerifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		res.Failure, res.Err = LoginFailureHash, err
		return res
	}
	if !ok {
		return recordFailure(ctx, res, LoginFailureInvalidCredentials, deps)
	}

	if err := deps.ResetAttempts(ctx, identifier); err != nil {
		deps.Warn("lockout reset failed", "identifier", identifier, "error", err)
	}

	now := deps.Now()
	revoked, err := deps.RevokeAllForUser(ctx, user.ID, now)
	if err != nil {
		res.Failure, res.Err = LoginFailureRevoke, err
		return res
	}
	res.Revoked = revoked

	pair, err := IssueTokens(user, deps.Issue)
	if err != nil {
		res.Failure, res.Err = LoginFailureIssue, err
		return res
	}
	if err := deps.PutRefresh(ctx, pair.Record(user.ID)); err != nil {
		res.Failure, res.Err = LoginFailurePersist, err
		return res
	}
	res.Tokens = pair

	if deps.UpgradeHash != nil {
		rehashed, err := deps.UpgradeHash(ctx, user, password)
		if err != nil {
			deps.Warn("password rehash failed", "user_id", user.ID, "error", err)
		}
		res.Rehashed = rehashed
	}

	return res
}

func recordFailure(ctx context.Context, res LoginResult, kind LoginFailureKind, deps LoginDeps) LoginResult {
	outcome, err := deps.RecordFailure(ctx, res.Identifier)
	if err != nil {
		res.Failure, res.Err = LoginFailureLockoutBackend, err
		return res
	}

	res.Failure = kind
	res.RemainingAttempts = outcome.RemainingAttempts
	if outcome.Locked {
		res.JustLocked = true
		res.LockoutUntil = outcome.LockoutUntil
		res.RetryAfter = retryAfter(outcome.LockoutUntil, deps.Now())
	}
	return res
}
