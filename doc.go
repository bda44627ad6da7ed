// Package campusAuth is the identity, session and access-control core of a
// school backend: password policy, account lockout, TOTP second factor,
// rotating refresh tokens and record-level ownership checks for admins,
// teachers, students and parents.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// campusAuth is the public surface. It exposes [Engine], [Builder], [Config],
// the repository interfaces it consumes and the value types it returns
// ([LoginResult], [TwoFactorSetup], [LockoutStatus]). Flow orchestration,
// limiters, challenge stores and audit dispatch live under internal/.
// Concrete repositories live in store (SQL) and session (Redis).
//
// # Errors
//
// Every failure is a flat sentinel or a typed error wrapping one. [KindOf]
// classifies any returned error for transport mapping; middleware.StatusFor
// turns that into an HTTP status.
//
// # What this package must NOT do
//
//   - Reveal whether a username or email exists.
//   - Persist a refresh-token or reset secret in the clear.
//   - Let an audit sink failure abort the operation that produced the event.
package campusAuth
