// Package limiters holds the attempt-counting policies behind login and the
// second factor.
//
// # Limiters
//
//   - [AccountLockout]: per-user failed-login counter kept on the user row,
//     with timed lockout and lazy expiry.
//   - [TwoFactorLimiter]: Redis fixed window over wrong TOTP and backup codes.
//   - [PasswordResetLimiter]: Redis fixed window over reset requests per email.
//
// The Redis limiters are nil-safe: calling any method on a nil receiver
// returns nil.
//
// # What this package must NOT do
//
//   - Import campusAuth or any sibling internal package.
//   - Decide consequences; flow functions and the Engine map results to errors.
package limiters
