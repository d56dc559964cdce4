// Package rbac implements the static role hierarchy and capability tables
// used by every keygate authorization decision.
//
// # Design
//
// Roles form a closed, totally ordered enum (Faculty < Security < HOD <
// SecurityIncharge < Admin). Capability sets and route rules are assembled
// once into an immutable [Hierarchy] at process start and never mutated
// afterward; all checks are pure map/slice lookups with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import keygate, token, or keys.
//   - Accept roles outside the closed enum; unknown roles fail every check.
package rbac
