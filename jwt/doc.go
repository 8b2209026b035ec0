// Package jwt issues and verifies the portal's signed access and refresh
// tokens.
//
// Both kinds are compact HS256 JWTs. Access tokens carry the identity the
// dashboards render (sub, role, roleLabel, name) and live for minutes.
// Refresh tokens carry only sub and jti and live for days. The two kinds are
// signed with separate secrets and tagged with a "type" claim, so neither can
// be presented in place of the other.
//
// # Claim completeness
//
// [Manager.ParseAccess] and [Manager.ParseRefresh] check the signature and
// expiry first, then require every claim of the token kind to be present.
// A correctly signed token with a missing claim fails with
// [ErrMissingClaims]. Callers receive a fully populated struct or an error,
// never a partially filled one.
//
// # What this package must NOT do
//
//   - Look up users or refresh records. Store checks happen in the Engine.
//   - Import any other veaauth package.
package jwt
