// Package veaauth is the authentication and session-security core of the
// Vea school portal.
//
// An [Engine] is assembled once through [Builder] and is safe for
// concurrent use. It logs users in with bcrypt-hashed passwords behind a
// per-email lockout, issues short-lived HS256 access tokens and rotating
// refresh tokens, and checks role rank for authorization. Every refresh
// token is recorded in a [RefreshStore]; rotation consumes the presented
// token with a compare-and-set so only one of several concurrent refreshes
// can win. Presenting a consumed token revokes every session of its user.
//
// # Errors
//
// Authentication failures are *[AuthError] values and match the Err*
// sentinels with errors.Is. Failing backends surface as
// ErrLockoutUnavailable, ErrDirectoryUnavailable or
// ErrRefreshStoreUnavailable and are never reported as bad credentials.
//
// # Sensitive data
//
// [Engine.EncryptSensitiveData] seals short strings such as phone numbers
// with AES-256-GCM. The reversible obfuscation in package fieldcrypt is not
// encryption and must not be used for secrets.
package veaauth
