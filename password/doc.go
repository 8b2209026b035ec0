// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are bcrypt strings with the cost embedded in the prefix:
//
//	$2a$12$<22-char salt><31-char hash>
//
// Hashes written by the previous portal release use the argon2id PHC format
// and are still accepted by [Hasher.Verify]:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports true for those legacy hashes and for bcrypt
// hashes below the configured cost, so the caller can re-hash after the next
// successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length, who may change a password) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other veaauth package.
//   - Log plaintext passwords or hashes.
package password
