// Package permission holds the portal's role table and the rank comparison
// used for authorization checks.
//
// # Rank model
//
// Roles are ranked, higher wins: super_admin (4), admin (3), the staff tier
// teacher/accountant/librarian (2) and the family tier student/parent (1).
// A role satisfies a requirement when it is listed explicitly or when its
// rank is strictly above the lowest-ranked required role.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import veaauth, jwt, or middleware.
//   - Change the built-in table after it is frozen.
package permission
