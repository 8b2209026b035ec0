package flows

import (
	"context"
	"time"

	"github.com/umarmf343/veaauth/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now              func() time.Time
	ParseRefresh     func(token string) (*jwt.RefreshClaims, error)
	RevokeAllForUser func(ctx context.Context, userID string, at time.Time) (int, error)
}

type LogoutResult struct {
	UserID  string
	JTI     string
	Revoked int
	// Invalid is set when the token failed verification; Err is then the
	// parse error.
	Invalid bool
	Err     error
}

// RunLogout revokes every refresh token of the user the presented refresh
// token belongs to.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return LogoutResult{Invalid: true, Err: err}
	}

	n, err := deps.RevokeAllForUser(ctx, claims.Subject, deps.Now())
	return LogoutResult{
		UserID:  claims.Subject,
		JTI:     claims.ID,
		Revoked: n,
		Err:     err,
	}
}

// RunRevokeUser revokes every refresh token of userID.
func RunRevokeUser(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return deps.RevokeAllForUser(ctx, userID, deps.Now())
}
