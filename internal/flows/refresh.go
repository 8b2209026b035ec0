package flows

import (
	"context"
	"errors"
	"time"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/jwt"
	"github.com/umarmf343/veaauth/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureUserGone
	RefreshFailureInactive
	RefreshFailureStore
	RefreshFailureDirectory
	RefreshFailureIssue
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	JTI     string
	User    directory.User
	Tokens  TokenPair
	// Revoked counts records revoked in response to reuse or a disabled account.
	Revoked int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now func() time.Time

	ParseRefresh func(token string) (*jwt.RefreshClaims, error)

	GetRecord        func(ctx context.Context, jti string) (refresh.Record, error)
	Rotate           func(ctx context.Context, jti string, next refresh.Record, at time.Time) error
	RevokeAllForUser func(ctx context.Context, userID string, at time.Time) (int, error)

	FindUserByID func(ctx context.Context, id string) (directory.User, error)
	Issue        IssueDeps

	Warn func(msg string, args ...any)
}

// RunRefresh verifies refreshToken, consumes its ledger record and issues a
// successor pair. A token whose record is missing or already consumed is
// treated as reuse and revokes every outstanding token of its user.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	// A bad signature and an expired exp are both just an invalid token.
	// RefreshFailureExpired is reserved for the ledger record's own expiry.
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	res := RefreshResult{UserID: claims.Subject, JTI: claims.ID}

	rec, err := deps.GetRecord(ctx, claims.ID)
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		return revokeOnFailure(ctx, res, RefreshFailureReuse, refresh.ErrNotFound, deps)
	case err != nil:
		res.Failure, res.Err = RefreshFailureStore, err
		return res
	}
	if rec.UserID != claims.Subject {
		res.Failure = RefreshFailureDecode
		return res
	}
	if rec.Consumed() {
		return revokeOnFailure(ctx, res, RefreshFailureReuse, refresh.ErrAlreadyConsumed, deps)
	}

	now := deps.Now()
	if rec.Expired(now) {
		res.Failure = RefreshFailureExpired
		return res
	}

	user, err := deps.FindUserByID(ctx, rec.UserID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return revokeOnFailure(ctx, res, RefreshFailureUserGone, err, deps)
	case err != nil:
		res.Failure, res.Err = RefreshFailureDirectory, err
		return res
	}
	res.User = user
	if !user.Active() {
		return revokeOnFailure(ctx, res, RefreshFailureInactive, nil, deps)
	}

	pair, err := IssueTokens(user, deps.Issue)
	if err != nil {
		res.Failure, res.Err = RefreshFailureIssue, err
		return res
	}

	err = deps.Rotate(ctx, rec.JTI, pair.Record(user.ID), now)
	switch {
	case errors.Is(err, refresh.ErrAlreadyConsumed), errors.Is(err, refresh.ErrNotFound):
		// Lost a race against another presenter of the same token.
		return revokeOnFailure(ctx, res, RefreshFailureReuse, err, deps)
	case err != nil:
		res.Failure, res.Err = RefreshFailureStore, err
		return res
	}

	res.Tokens = pair
	return res
}

func revokeOnFailure(ctx context.Context, res RefreshResult, kind RefreshFailureKind, cause error, deps RefreshDeps) RefreshResult {
	res.Failure, res.Err = kind, cause
	if res.UserID == "" {
		return res
	}

	n, err := deps.RevokeAllForUser(ctx, res.UserID, deps.Now())
	if err != nil {
		deps.Warn("refresh lineage revocation failed", "user_id", res.UserID, "jti", res.JTI, "error", err)
		return res
	}
	res.Revoked = n
	return res
}
