// Package jwt issues and verifies the short-lived access tokens that carry a
// caller's user id, username and role.
//
// Tokens are signed with HS256 or Ed25519 through github.com/golang-jwt/jwt/v5.
// Parsing pins the algorithm, requires an expiry, and checks issuer and
// audience when configured. Key rotation is supported through KeyID and
// VerifyKeys.
package jwt
