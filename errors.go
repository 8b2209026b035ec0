package veaauth

import (
	"errors"
	"time"

	"github.com/umarmf343/veaauth/fieldcrypt"
)

// Reason is the machine-stable code carried by an AuthError.
type Reason string

const (
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonAccountLocked       Reason = "account_locked"
	ReasonAccountInactive     Reason = "account_inactive"
	ReasonInvalidToken        Reason = "invalid_token"
	ReasonMissingClaims       Reason = "missing_claims"
	ReasonRefreshTokenReused  Reason = "refresh_token_reused"
	ReasonRefreshTokenExpired Reason = "refresh_token_expired"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidCredentials:  "invalid credentials",
	ReasonAccountLocked:       "account locked",
	ReasonAccountInactive:     "account inactive",
	ReasonInvalidToken:        "invalid token",
	ReasonMissingClaims:       "invalid token claims",
	ReasonRefreshTokenReused:  "refresh token reuse detected",
	ReasonRefreshTokenExpired: "refresh token expired",
}

// AuthError is returned for every authentication failure. errors.Is matches
// on Reason, so per-call metadata does not defeat comparisons against the
// sentinel values below.
type AuthError struct {
	Reason Reason
	// RetryAfter is set for ReasonAccountLocked.
	RetryAfter time.Duration
	// RemainingAttempts is the number of failures left before lockout. It is
	// only meaningful after a credential check failed.
	RemainingAttempts int

	message string
	cause   error
}

func newAuthError(reason Reason, cause error) *AuthError {
	return &AuthError{Reason: reason, cause: cause}
}

func (e *AuthError) Error() string {
	if e.message != "" {
		return e.message
	}
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return string(e.Reason)
}

// Is reports whether target is an *AuthError with the same Reason.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Reason == e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.cause
}

// ReasonOf returns the Reason of the first AuthError in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}

var (
	ErrInvalidCredentials  = &AuthError{Reason: ReasonInvalidCredentials}
	ErrAccountLocked       = &AuthError{Reason: ReasonAccountLocked}
	ErrAccountInactive     = &AuthError{Reason: ReasonAccountInactive}
	ErrInvalidToken        = &AuthError{Reason: ReasonInvalidToken}
	ErrMissingClaims       = &AuthError{Reason: ReasonMissingClaims}
	ErrRefreshTokenReused  = &AuthError{Reason: ReasonRefreshTokenReused}
	ErrRefreshTokenExpired = &AuthError{Reason: ReasonRefreshTokenExpired}
)

var (
	// ErrAccountExists is returned by RegisterUser for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidRegistration is returned by RegisterUser for malformed input.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrUnknownRole is returned when a role is not in the portal role table.
	ErrUnknownRole = errors.New("unknown role")
	// ErrPasswordPolicy is returned when a new password is too short or too long.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned by ChangePassword when old and new match.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrUserNotFound is returned by administrative operations on unknown ids.
	// Login never returns it.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned by methods on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	ErrLockoutUnavailable      = errors.New("lockout store unavailable")
	ErrRefreshStoreUnavailable = errors.New("refresh token store unavailable")
	ErrDirectoryUnavailable    = errors.New("user directory unavailable")

	// ErrInvalidFormat and ErrAuthenticationFailed are the cipher errors
	// returned by DecryptSensitiveData.
	ErrInvalidFormat        = fieldcrypt.ErrInvalidFormat
	ErrAuthenticationFailed = fieldcrypt.ErrAuthenticationFailed
)
