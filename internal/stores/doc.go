// Package stores provides the Redis-backed record store for one-time
// challenges.
//
// # Design
//
// One record lives per (identity, purpose) pair, so creating a challenge
// atomically replaces — and thereby invalidates — any prior active one for
// the same pair. Consumption is a single Lua script implementing
// GET→validate→DEL/SET: expiry is checked against the timestamp inside the
// record (the Redis TTL only reclaims space), failed matches increment the
// attempt counter in place, and an exhausted record is retained until its
// TTL so late retries keep failing with the terminal class rather than
// degrading to not-found.
//
// # What this package must NOT do
//
//   - Generate codes, rate-limit requests, or make authentication
//     decisions; those belong to the engine.
//   - Treat Redis key expiry as the source of truth for validity.
//   - Use non-constant-time comparisons for the final secret match.
package stores
