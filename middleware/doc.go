// Package middleware adapts veaauth.Engine to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and stores its claims in the
//     request context.
//   - [RequireRoles] rejects requests whose role does not satisfy the
//     required roles. It must run behind Guard.
//   - [ClientIP] records the remote host for audit events on routes that
//     are not guarded.
//
// This package translates HTTP semantics into Engine calls. It never parses
// tokens or ranks roles itself.
package middleware
