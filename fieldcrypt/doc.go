// Package fieldcrypt encrypts sensitive fields (bank details, guardian phone
// numbers, staff ID numbers) before they are written to disk.
//
// # Payload format
//
// [Cipher.Encrypt] returns three hex segments joined by colons:
//
//	<iv, 12 bytes>:<GCM tag, 16 bytes>:<ciphertext>
//
// The AES-256 key is derived from a configured secret with scrypt. Every
// payload is bound to [AdditionalData], so ciphertext copied from another
// system that shares the passphrase but not the context string will not open.
//
// # Insecure obfuscation
//
// [Obfuscate] and [Deobfuscate] exist for code that runs without the secret
// (browser bundles, fixtures). They are reversible base64 with an "obf:"
// prefix and give no confidentiality. They never share a code path with
// [Cipher], and [IsObfuscated] lets callers tell the two payload kinds apart.
//
// # What this package must NOT do
//
//   - Read secrets from the environment. The caller passes them in.
//   - Fall back to obfuscation when decryption fails.
package fieldcrypt
