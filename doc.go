// Package keygate provides an authentication, authorization, and key-lifecycle
// core for physical-access key management: one-time channel challenges (OTP),
// failure-based account lockout, signed stateless session tokens, a static
// role/capability engine, and a compare-and-swap guarded key state machine.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// keygate is the public surface. It exposes [Engine], [Builder], [Config],
// the [Identity] model, and the external collaborator contracts
// ([IdentityStore], [Notifier], [AuditSink]). Challenge persistence, rate
// limiting, and randomness live under internal/ and are never exported.
// The token, rbac, and keys subpackages are usable on their own.
//
// # What this package must NOT do
//
//   - Format user-facing text or map errors to HTTP status codes; callers
//     translate [Kind] values at the boundary.
//   - Deliver challenge codes itself; delivery goes through the caller's
//     [Notifier] and delivery failure never fails challenge creation.
//   - Expose Redis clients or record encodings in its public API.
//
// # Performance contract
//
// Token verification and every rbac check are pure computations with no I/O.
// Challenge and key operations are allowed one Redis round trip each; the
// atomic parts (challenge consume, key compare-and-swap) execute as single
// Lua scripts so a race loser observes a conflict, never a torn write.
package keygate
