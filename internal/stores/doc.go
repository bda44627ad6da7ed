// Package stores holds short-lived, Redis-backed challenge records.
//
// Today that is the password reset challenge: a versioned binary record with
// a TTL, consumed under WATCH/MULTI with retry on contention. Consume is
// single use and burns the record after too many wrong secrets. Secrets are
// compared in constant time and never stored in the clear.
//
// The package does not mint secrets or decide what a consumed challenge
// means; the engine does both.
package stores
