package flows

import (
	"time"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/jwt"
	"github.com/umarmf343/veaauth/refresh"
)

// TokenPair is a freshly signed access and refresh token.
type TokenPair struct {
	Access  jwt.IssuedToken
	Refresh jwt.IssuedToken
}

// Record returns the ledger entry for the pair's refresh token.
func (p TokenPair) Record(userID string) refresh.Record {
	return refresh.Record{
		JTI:       p.Refresh.JTI,
		UserID:    userID,
		IssuedAt:  p.Refresh.IssuedAt,
		ExpiresAt: p.Refresh.ExpiresAt,
	}
}

// IssueDeps signs token pairs.
type IssueDeps struct {
	IssueAccess  func(jwt.AccessSubject) (jwt.IssuedToken, error)
	IssueRefresh func(userID string) (jwt.IssuedToken, error)
	RoleLabel    func(role string) string
}

// IssueTokens signs an access and a refresh token for user. Nothing is
// persisted.
func IssueTokens(user directory.User, deps IssueDeps) (TokenPair, error) {
	access, err := deps.IssueAccess(jwt.AccessSubject{
		UserID:    user.ID,
		Role:      user.Role,
		RoleLabel: deps.RoleLabel(user.Role),
		Name:      displayName(user),
	})
	if err != nil {
		return TokenPair{}, err
	}

	rt, err := deps.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: rt}, nil
}

// displayName falls back to the email so the name claim is never empty.
func displayName(u directory.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func retryAfter(until, now time.Time) time.Duration {
	if d := until.Sub(now); d > 0 {
		return d
	}
	return 0
}
