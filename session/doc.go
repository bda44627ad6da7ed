// Package session provides the Redis-backed repositories for refresh-token
// rows and per-user two-factor records.
//
// # Refresh tokens
//
// Each row is a Redis hash holding the SHA-256 digest of the secret, never
// the secret itself. [Store.RevokeIfActive] runs a Lua compare-and-set so
// that among concurrent rotations of the same token exactly one observes a
// successful revocation.
//
// # Two-factor records
//
// Backup codes live in a Redis set next to the record hash. Consuming a code
// is a single SREM, so a code can be redeemed at most once even under
// concurrent submissions.
//
// # What this package must NOT do
//
//   - Import campusAuth, jwt, or permission (no upward imports).
//   - Decide whether a token grants access; that belongs to the Engine.
package session
