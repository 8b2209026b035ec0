// Package directory defines the user records the auth Engine reads and the
// contract it reads them through.
//
// The portal's profile pages, class lists and fee ledgers own user data; the
// Engine only needs lookups by normalised email and id, a way to store a new
// password hash, and registration. [Memory] serves tests and embedded use.
// [JSONFile] reads and writes the portal's users.json, including records from
// the old release that still carry a plaintext "password" field and no hash.
package directory
