// Package refresh is the ledger of issued refresh tokens.
//
// Every refresh token the Engine signs has a [Record] keyed by its jti. A
// record is consumed exactly once, when a new pair is issued from it, and
// points at its successor. Presenting a consumed or unknown jti is a reuse
// event: the Engine fails closed and revokes the user's outstanding tokens.
//
// # Stores
//
//   - [MemoryStore]: mutex-guarded map for tests and single-process tools.
//   - [FileStore]: JSON ledger on local disk, rewritten atomically on every
//     change, so a restart does not forget consumed tokens.
//   - [RedisStore]: Lua scripts give compare-and-set on consumption across
//     replicas. Keys share one hash tag, so Redis Cluster works too.
//   - [SQLStore]: SQLite or PostgreSQL through database/sql, with the schema
//     applied by [Migrate].
//
// All stores implement the consume step as a compare-and-set on consumed_at:
// of two concurrent calls for one jti, exactly one succeeds and the other
// gets [ErrAlreadyConsumed].
//
// # What this package must NOT do
//
//   - Parse or sign tokens. It stores jtis, never token strings.
//   - Decide what reuse means. The Engine owns that policy.
package refresh
