// Package twofactor provides the TOTP and backup-code primitives used by the
// engine's two-factor flows.
//
// TOTP keys, provisioning URIs and code validation come from
// github.com/pquerna/otp. Enrollment QR codes are rendered from the key's
// barcode image into a PNG data URI. Backup codes are 8 uppercase hex
// characters drawn from the injected random source.
//
// Persistence and the enrollment state machine live in the engine.
package twofactor
