// Package lockout tracks failed login attempts per identifier and locks the
// identifier out once a threshold is reached inside a rolling window.
//
// # State machine
//
//	Clear ──fail──▶ Accumulating(n) ──fail, n+1 ≥ MaxAttempts──▶ Locked(until)
//	  ▲                 │ now-first ≥ Window                      │ now ≥ until
//	  └─────────────────┴─────────────────────────────────────────┘
//
// Success or an explicit [Tracker.Reset] returns any state to Clear. Expiry
// is applied lazily on the next read or write of the identifier.
//
// # Stores
//
// [MemoryStore] keeps state in a mutex-guarded map for a single process.
// [RedisStore] runs each transition as one Lua script so replicas behind a
// load balancer share a budget. Both apply the increment and the threshold
// comparison atomically, so concurrent failures never under-count.
//
// # What this package must NOT do
//
//   - Decide what a lockout means to the caller. The Engine maps decisions
//     to errors.
//   - Track the empty identifier.
package lockout
