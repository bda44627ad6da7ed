// Package refresh implements the opaque "<id>.<secret>" bearer format used for
// refresh tokens and password-reset challenges.
//
// The id locates the stored row without scanning; the secret is the credential.
// Only [Hash] of the secret is ever persisted, and [Matches] compares in
// constant time.
//
// This package does no I/O beyond reading from the supplied random source.
// Rotation and replay handling belong to the engine and the token stores.
package refresh
