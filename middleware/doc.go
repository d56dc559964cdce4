// Package middleware exposes HTTP adapters for route authorization built on
// top of keygate.Engine token verification and the rbac route table.
//
// # Guards
//
//   - [Guard] — public allowlist bypass, then token + route authorization.
//   - [RequireCapability] — handler-level capability check on top of Guard.
//
// Each guard reads the Authorization header, calls Engine.VerifyToken,
// checks the route table, and injects validated claims into the request
// context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authorization logic itself — all decisions are delegated to the
// Engine and its rbac hierarchy.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis or any store.
//   - Make authorization decisions beyond what Engine and rbac report.
package middleware
