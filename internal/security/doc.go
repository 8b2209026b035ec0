// Package security derives the engine's security posture report from
// resolved configuration. It holds no state and performs no I/O.
package security
