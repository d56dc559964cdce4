// Package keys implements the lifecycle state machine for physical-access
// keys: available → assigned → available, maintenance from any state, and
// administrative lost/damaged flags.
//
// # Design
//
// [Key] is a plain value type; transition rules are pure functions over it so
// the lifecycle is testable without a store. [Service] executes transitions
// against a [Store] under optimistic concurrency: every write is a
// compare-and-swap on the record version, so of two racing callers exactly
// one wins and the loser observes [ErrConflict], never a torn write.
// Overdue is a derived predicate computed at query time; it is never
// persisted as a status.
//
// # What this package must NOT do
//
//   - Persist an "overdue" status or any other second source of truth for
//     the assignment window.
//   - Mutate a key outside the Service transition methods.
//   - Import keygate or token.
package keys
