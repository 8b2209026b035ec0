package veaauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/fieldcrypt"
	"github.com/umarmf343/veaauth/internal/audit"
	"github.com/umarmf343/veaauth/internal/flows"
	"github.com/umarmf343/veaauth/jwt"
	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/password"
	"github.com/umarmf343/veaauth/permission"
	"github.com/umarmf343/veaauth/refresh"
)

// Engine is the authentication orchestrator of the portal.
//
// Engine instances are built once through Builder and are safe for
// concurrent use.
type Engine struct {
	config Config

	users    directory.Directory
	refresh  refresh.Store
	lockout  *lockout.Tracker
	hasher   *password.Hasher
	slots    *semaphore.Weighted
	tokens   *jwt.Manager
	cipher   *fieldcrypt.Cipher
	roles    *permission.RoleTable
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	flowDeps flows.Deps

	dummyOnce sync.Once
	dummyHash string
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates email and password and starts a new session. Any
// refresh token issued to the user earlier is revoked.
//
// Failures are *AuthError values: ErrInvalidCredentials for an unknown
// email or a wrong password, ErrAccountInactive, and ErrAccountLocked with
// RetryAfter set. Store outages wrap ErrLockoutUnavailable,
// ErrDirectoryUnavailable or ErrRefreshStoreUnavailable.
func (e *Engine) Login(ctx context.Context, email, password string) (*Session, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	res := flows.RunLogin(ctx, email, password, e.flowDeps.Login)
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginFailure(ctx, res)
	}

	if res.Rehashed {
		e.metricInc(MetricPasswordRehashed)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, res.User.ID, res.Identifier, res.Tokens.Refresh.JTI, nil, func() map[string]string {
		return map[string]string{
			"revoked": fmt.Sprint(res.Revoked),
		}
	})
	e.logger.InfoContext(ctx, "login succeeded", "user_id", res.User.ID, "revoked", res.Revoked)

	return &Session{User: publicUser(res.User), Tokens: tokenPair(res.Tokens)}, nil
}

func (e *Engine) loginFailure(ctx context.Context, res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureLocked:
		err := &AuthError{Reason: ReasonAccountLocked, RetryAfter: res.RetryAfter}
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, AuditLoginLocked, false, res.User.ID, res.Identifier, "", err, func() map[string]string {
			return map[string]string{
				"retry_after":  res.RetryAfter.String(),
				"locked_until": res.LockoutUntil.UTC().Format(time.RFC3339),
			}
		})
		return err

	case flows.LoginFailureInvalidCredentials:
		// The attempt that trips the lockout still reports a credential
		// mismatch. Only later attempts see ReasonAccountLocked.
		err := &AuthError{Reason: ReasonInvalidCredentials, RemainingAttempts: res.RemainingAttempts}
		eventType := AuditLoginFailure
		if res.JustLocked {
			err.RetryAfter = res.RetryAfter
			eventType = AuditLoginLocked
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, eventType, false, res.User.ID, res.Identifier, "", err, func() map[string]string {
			md := map[string]string{
				"remaining_attempts": fmt.Sprint(res.RemainingAttempts),
			}
			if res.JustLocked {
				md["just_locked"] = "true"
				md["locked_until"] = res.LockoutUntil.UTC().Format(time.RFC3339)
			}
			return md
		})
		if res.JustLocked {
			e.logger.WarnContext(ctx, "account locked after repeated failures", "identifier", res.Identifier, "retry_after", res.RetryAfter)
		}
		return err

	case flows.LoginFailureInactive:
		err := &AuthError{Reason: ReasonAccountInactive, RemainingAttempts: res.RemainingAttempts}
		if res.JustLocked {
			err.RetryAfter = res.RetryAfter
		}
		e.metricInc(MetricLoginInactive)
		e.emitAudit(ctx, AuditLoginFailure, false, res.User.ID, res.Identifier, "", err, func() map[string]string {
			return map[string]string{
				"status": string(res.User.Status),
			}
		})
		return err

	case flows.LoginFailureLockoutBackend:
		return e.backendFailure(ctx, "login", ErrLockoutUnavailable, res.Err)
	case flows.LoginFailureDirectory:
		return e.backendFailure(ctx, "login", ErrDirectoryUnavailable, res.Err)
	case flows.LoginFailureRevoke, flows.LoginFailurePersist:
		return e.backendFailure(ctx, "login", ErrRefreshStoreUnavailable, res.Err)
	case flows.LoginFailureHash:
		return fmt.Errorf("password verification: %w", res.Err)
	default:
		e.logger.ErrorContext(ctx, "token issuance failed", "user_id", res.User.ID, "error", res.Err)
		return fmt.Errorf("issue tokens: %w", res.Err)
	}
}

// RefreshSession rotates refreshToken: the presented token is consumed and
// a new pair is issued. Presenting a consumed or unknown token fails with
// ErrRefreshTokenReused and revokes every refresh token of that user.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()

	res := flows.RunRefresh(ctx, refreshToken, e.flowDeps.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefreshSuccess, true, res.UserID, "", res.JTI, nil, func() map[string]string {
		return map[string]string{
			"successor": res.Tokens.Refresh.JTI,
		}
	})
	return &Session{User: publicUser(res.User), Tokens: tokenPair(res.Tokens)}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	var err error
	switch res.Failure {
	case flows.RefreshFailureDecode, flows.RefreshFailureUserGone:
		err = &AuthError{Reason: ReasonInvalidToken, message: "invalid refresh token", cause: res.Err}
	case flows.RefreshFailureExpired:
		err = newAuthError(ReasonRefreshTokenExpired, res.Err)
		e.metricInc(MetricRefreshExpired)
	case flows.RefreshFailureReuse:
		err = newAuthError(ReasonRefreshTokenReused, res.Err)
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricRefreshFailure)
		e.logger.WarnContext(ctx, "refresh token reuse detected", "user_id", res.UserID, "jti", res.JTI, "revoked", res.Revoked)
		e.emitAudit(ctx, AuditRefreshReuse, false, res.UserID, "", res.JTI, err, func() map[string]string {
			return map[string]string{
				"revoked": fmt.Sprint(res.Revoked),
			}
		})
		return err
	case flows.RefreshFailureInactive:
		err = newAuthError(ReasonAccountInactive, nil)
	case flows.RefreshFailureStore:
		return e.backendFailure(ctx, "refresh", ErrRefreshStoreUnavailable, res.Err)
	case flows.RefreshFailureDirectory:
		return e.backendFailure(ctx, "refresh", ErrDirectoryUnavailable, res.Err)
	default:
		e.logger.ErrorContext(ctx, "token issuance failed", "user_id", res.UserID, "error", res.Err)
		return fmt.Errorf("issue tokens: %w", res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, AuditRefreshFailure, false, res.UserID, "", res.JTI, err, nil)
	return err
}

// VerifyAccessToken checks signature, expiry and claim completeness of an
// access token. It has no side effects beyond metrics.
func (e *Engine) VerifyAccessToken(token string) (*AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricAccessTokenRejected)
		if errors.Is(err, jwt.ErrMissingClaims) {
			return nil, newAuthError(ReasonMissingClaims, err)
		}
		return nil, newAuthError(ReasonInvalidToken, err)
	}
	return claims, nil
}

// HasPermission reports whether role satisfies required. See
// permission.RoleTable.Allows.
func (e *Engine) HasPermission(role Role, required ...Role) bool {
	if e == nil || e.roles == nil {
		return permission.Allows(role, required...)
	}
	return e.roles.Allows(role, required...)
}

// Logout revokes the session lineage refreshToken belongs to.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, refreshToken, e.flowDeps.Logout)
	if res.Invalid {
		return &AuthError{Reason: ReasonInvalidToken, message: "invalid refresh token", cause: res.Err}
	}
	if res.Err != nil {
		return e.backendFailure(ctx, "logout", ErrRefreshStoreUnavailable, res.Err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, res.UserID, "", res.JTI, nil, func() map[string]string {
		return map[string]string{
			"revoked": fmt.Sprint(res.Revoked),
		}
	})
	return nil
}

// RevokeUserSessions revokes every outstanding refresh token of userID and
// returns how many were revoked.
func (e *Engine) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}

	n, err := flows.RunRevokeUser(ctx, userID, e.flowDeps.Logout)
	if err != nil {
		return 0, e.backendFailure(ctx, "revoke sessions", ErrRefreshStoreUnavailable, err)
	}

	e.metricInc(MetricSessionsRevoked)
	e.emitAudit(ctx, AuditSessionsRevoked, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"revoked": fmt.Sprint(n),
		}
	})
	return n, nil
}

func (e *Engine) backendFailure(ctx context.Context, op string, sentinel, cause error) error {
	e.metricInc(MetricBackendUnavailable)
	e.logger.ErrorContext(ctx, "auth backend unavailable", "op", op, "error", cause)
	return fmt.Errorf("%w: %v", sentinel, cause)
}

func tokenPair(p flows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:           p.Access.Token,
		RefreshToken:          p.Refresh.Token,
		AccessTokenExpiresAt:  p.Access.ExpiresAt,
		RefreshTokenExpiresAt: p.Refresh.ExpiresAt,
		TokenType:             TokenTypeBearer,
	}
}
