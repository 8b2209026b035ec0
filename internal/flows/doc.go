// Package flows contains pure-function orchestrators for the Engine's
// login, refresh and logout operations.
//
// Each flow function (RunLogin, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result carrying either the outcome or a
// failure kind. The Engine maps failure kinds to its public errors, audit
// events and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the lockout tracker, user directory,
// password hasher, token manager and refresh store. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import veaauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
