// Package token issues and verifies the signed, stateless session tokens
// carrying identity and role.
//
// # Design
//
// Tokens are JWTs signed with ed25519 (default) or HS256. Validity is fully
// determined by signature and expiry; there is no server-side session or
// revocation list. Verification failures are classified into three sentinel
// errors: [ErrMalformed], [ErrSignature], and [ErrExpired].
//
// # Architecture boundaries
//
// Every operation here is a pure computation. This package must not perform
// I/O, block, or touch Redis; refresh is verify-then-reissue with a fresh
// TTL and never invalidates the old token.
package token
