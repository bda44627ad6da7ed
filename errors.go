package campusAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/campusAuth/ownership"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by admin and self-service operations that
	// name a user id directly.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountLocked is wrapped by LockoutError.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordPolicy is wrapped by PolicyViolationError.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects a change to the current password.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrPasswordResetInvalid covers unknown, expired and mismatched reset tokens.
	ErrPasswordResetInvalid = errors.New("password reset challenge invalid")
	// ErrPasswordResetAttempts is returned when a reset challenge is burned by too many wrong secrets.
	ErrPasswordResetAttempts = errors.New("password reset attempts exceeded")
	// ErrPasswordResetRateLimited throttles reset requests per address.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrPasswordResetDisabled is returned when no mailer is configured.
	ErrPasswordResetDisabled = errors.New("password reset disabled")

	ErrTokenInvalid             = errors.New("invalid token")
	ErrMalformedRefreshToken    = errors.New("malformed refresh token")
	ErrRefreshTokenInvalid      = errors.New("invalid refresh token")
	ErrRefreshTokenRevoked      = errors.New("refresh token revoked")
	ErrRefreshTokenExpired      = errors.New("refresh token expired")
	ErrRefreshHashMismatch      = errors.New("refresh token hash mismatch")
	ErrSessionCreationFailed    = errors.New("session creation failed")
	ErrTwoFactorRequired        = errors.New("two-factor verification required")
	ErrTwoFactorCodeInvalid     = errors.New("invalid two-factor code")
	ErrTwoFactorRateLimited     = errors.New("two-factor attempts rate limited")
	ErrTwoFactorNotEnrolled     = errors.New("two-factor not enrolled")
	ErrTwoFactorNotEnabled      = errors.New("two-factor not enabled")
	ErrTwoFactorAlreadyEnabled  = errors.New("two-factor already enabled")
	ErrTwoFactorAlreadyEnrolled = errors.New("two-factor already enrolled")

	// ErrForbidden is returned when a role or ownership check denies access.
	ErrForbidden = errors.New("forbidden")
	// ErrAccessLinkMissing is wrapped by LinkMissingError.
	ErrAccessLinkMissing = ownership.ErrAccessLinkMissing

	// ErrStoreUnavailable wraps repository and Redis failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConfigInvalid wraps every configuration rejection.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockoutError reports how long a locked account stays locked.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked for %s", e.Remaining.Round(time.Second))
}

func (e *LockoutError) Unwrap() error { return ErrAccountLocked }

// RemainingMs is Remaining in whole milliseconds.
func (e *LockoutError) RemainingMs() int64 {
	return e.Remaining.Milliseconds()
}

// PolicyViolationError lists every password rule a candidate failed.
type PolicyViolationError struct {
	Violations []string
}

func (e *PolicyViolationError) Error() string {
	return ErrPasswordPolicy.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *PolicyViolationError) Unwrap() error { return ErrPasswordPolicy }

// LinkMissingError is returned when a user has a role but no matching
// student, teacher or parent row.
type LinkMissingError = ownership.LinkMissingError

// ErrorKind groups errors by how the outer layer should respond.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindConflict
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unknown errors, including store failures, are
// KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrSessionCreationFailed):
		return KindInternal
	case errors.Is(err, ErrMalformedRefreshToken),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrTwoFactorNotEnrolled),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrConfigInvalid):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshTokenInvalid),
		errors.Is(err, ErrRefreshTokenRevoked),
		errors.Is(err, ErrRefreshTokenExpired),
		errors.Is(err, ErrRefreshHashMismatch),
		errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrTwoFactorCodeInvalid),
		errors.Is(err, ErrTwoFactorRateLimited),
		errors.Is(err, ErrPasswordResetInvalid),
		errors.Is(err, ErrPasswordResetAttempts),
		errors.Is(err, ErrPasswordResetRateLimited):
		return KindAuthentication
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAccessLinkMissing):
		return KindAuthorization
	case errors.Is(err, ErrTwoFactorAlreadyEnabled), errors.Is(err, ErrTwoFactorAlreadyEnrolled):
		return KindConflict
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrPasswordResetDisabled):
		return KindNotFound
	default:
		return KindInternal
	}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
