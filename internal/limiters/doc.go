// Package limiters provides the Redis-backed sliding-window limiter gating
// challenge creation.
//
// All limiters are nil-safe: calling any method on a nil receiver allows the
// request.
package limiters
