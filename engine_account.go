package veaauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/lockout"
)

// RegisterUser creates an account. The email is stored normalised, the
// password is bcrypt-hashed and the returned User carries no hash.
func (e *Engine) RegisterUser(ctx context.Context, req RegisterRequest) (User, error) {
	if e == nil || e.users == nil {
		return User{}, ErrEngineNotReady
	}

	email := directory.NormalizeEmail(req.Email)
	if !validEmail(email) {
		return User{}, fmt.Errorf("%w: email", ErrInvalidRegistration)
	}
	if !e.roles.Known(req.Role) {
		return User{}, fmt.Errorf("%w: %q", ErrUnknownRole, req.Role)
	}
	status := req.Status
	switch status {
	case "":
		status = StatusActive
	case StatusActive, StatusInactive, StatusSuspended:
	default:
		return User{}, fmt.Errorf("%w: status %q", ErrInvalidRegistration, status)
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return User{}, err
	}

	hash, err := e.HashPassword(ctx, req.Password)
	if err != nil {
		return User{}, err
	}

	user, err := e.users.CreateUser(ctx, directory.NewUser{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         string(req.Role),
		Status:       status,
	})
	switch {
	case errors.Is(err, directory.ErrDuplicateEmail):
		e.metricInc(MetricAccountDuplicate)
		return User{}, ErrAccountExists
	case errors.Is(err, directory.ErrInvalidUser):
		return User{}, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	case err != nil:
		return User{}, e.backendFailure(ctx, "register", ErrDirectoryUnavailable, err)
	}

	e.metricInc(MetricAccountRegistered)
	e.emitAudit(ctx, AuditAccountRegistered, true, user.ID, email, "", nil, func() map[string]string {
		return map[string]string{
			"role": user.Role,
		}
	})
	return publicUser(user), nil
}

// SetUserPassword replaces the password of user id and revokes the user's
// sessions. It enforces only the hasher's limits, not MinLength, so legacy
// plaintext passwords can be backfilled as they are.
func (e *Engine) SetUserPassword(ctx context.Context, id, plain string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.findUser(ctx, id)
	if err != nil {
		return err
	}

	hash, err := e.HashPassword(ctx, plain)
	if err != nil {
		return err
	}
	if err := e.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return e.backendFailure(ctx, "set password", ErrDirectoryUnavailable, err)
	}

	revoked, err := e.refresh.RevokeAllForUser(ctx, user.ID, e.now())
	if err != nil {
		return e.backendFailure(ctx, "set password", ErrRefreshStoreUnavailable, err)
	}

	e.emitAudit(ctx, AuditPasswordSet, true, user.ID, user.Email, "", nil, func() map[string]string {
		return map[string]string{
			"revoked": fmt.Sprint(revoked),
		}
	})
	return nil
}

// ChangePassword verifies oldPassword, stores newPassword and revokes every
// session of the user.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.verifyPassword(ctx, oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, AuditPasswordChanged, false, user.ID, user.Email, "", ErrInvalidCredentials, nil)
		return newAuthError(ReasonInvalidCredentials, nil)
	}
	if oldPassword == newPassword {
		return ErrPasswordReuse
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := e.HashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := e.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return e.backendFailure(ctx, "change password", ErrDirectoryUnavailable, err)
	}

	revoked, err := e.refresh.RevokeAllForUser(ctx, user.ID, e.now())
	if err != nil {
		return e.backendFailure(ctx, "change password", ErrRefreshStoreUnavailable, err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, AuditPasswordChanged, true, user.ID, user.Email, "", nil, func() map[string]string {
		return map[string]string{
			"revoked": fmt.Sprint(revoked),
		}
	})
	return nil
}

// LockoutStatus reports the lockout state of email without changing it.
func (e *Engine) LockoutStatus(ctx context.Context, email string) (LockoutStatus, error) {
	if e == nil || e.lockout == nil {
		return LockoutStatus{}, ErrEngineNotReady
	}

	id := lockout.Normalize(email)
	d, err := e.lockout.CanAttempt(ctx, id)
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return LockoutStatus{
		Identifier:        id,
		Locked:            d.Locked,
		RemainingAttempts: d.RemainingAttempts,
		RetryAfter:        d.RetryAfter,
		LockoutUntil:      d.LockoutUntil,
	}, nil
}

// UnlockAccount clears failed attempts and any lockout for email.
func (e *Engine) UnlockAccount(ctx context.Context, email string) error {
	if e == nil || e.lockout == nil {
		return ErrEngineNotReady
	}

	id := lockout.Normalize(email)
	if err := e.lockout.Reset(ctx, id); err != nil {
		return e.backendFailure(ctx, "unlock", ErrLockoutUnavailable, err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, AuditAccountUnlocked, true, "", id, "", nil, nil)
	return nil
}

// PurgeExpiredRefreshTokens deletes ledger records that expired before now.
func (e *Engine) PurgeExpiredRefreshTokens(ctx context.Context) (int, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.refresh.DeleteExpired(ctx, e.now())
	if err != nil {
		return 0, e.backendFailure(ctx, "purge", ErrRefreshStoreUnavailable, err)
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "purged expired refresh tokens", "count", n)
	}
	return n, nil
}

func (e *Engine) findUser(ctx context.Context, id string) (directory.User, error) {
	user, err := e.users.FindUserByID(ctx, id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return directory.User{}, ErrUserNotFound
	case err != nil:
		return directory.User{}, e.backendFailure(ctx, "find user", ErrDirectoryUnavailable, err)
	}
	return user, nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
