package campusAuth

import (
	"context"
	"errors"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/campusAuth/internal/audit"
	"github.com/MrEthical07/campusAuth/internal/limiters"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventAccountLocked          = "account_locked"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventSessionIssued          = "session_issued"
	auditEventTwoFactorRequired      = "two_factor_required"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventRefreshReplayDetected  = "refresh_replay_detected"
	auditEventLogout                 = "logout"
	auditEventTwoFactorEnrolled      = "two_factor_enrolled"
	auditEventTwoFactorEnabled       = "two_factor_enabled"
	auditEventTwoFactorDisabled      = "two_factor_disabled"
	auditEventTwoFactorSuccess       = "two_factor_success"
	auditEventTwoFactorFailure       = "two_factor_failure"
	auditEventBackupCodeUsed         = "backup_code_used"
	auditEventBackupCodesRegenerated = "backup_codes_regenerated"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventAccessDenied           = "access_denied"
)

// AuditErrorCode is the stable, non-sensitive error label carried by audit
// events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrMalformedToken     AuditErrorCode = "malformed_token"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrHashMismatch       AuditErrorCode = "hash_mismatch"
	auditErrSessionCreation    AuditErrorCode = "session_creation_failed"
	auditErrTwoFactorInvalid   AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorLimited   AuditErrorCode = "two_factor_rate_limited"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrResetInvalid       AuditErrorCode = "reset_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrLinkMissing        AuditErrorCode = "link_missing"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit builds and delivers one event. ActorID is who acted and target
// whose account it concerns; pass the same id for self-service operations.
// metadataBuilder runs only when an event is actually produced.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actorID string,
	targetUserID string,
	ip string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || (e.audit == nil && e.auditSink == nil) {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    e.clock.Now(),
		Type:         eventType,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		IP:           resolveIP(ctx, ip),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	if e.audit != nil {
		e.audit.Emit(ctx, event)
		return
	}
	internalaudit.SafeEmit(ctx, e.auditSink, event, e.onAuditPanic)
}

func (e *Engine) onAuditPanic(r any) {
	e.metricInc(MetricAuditPanic)
	e.logger.Error("audit sink panicked", "panic", r)
}

// onLockoutEvent turns lockout state changes into audit events and counters.
func (e *Engine) onLockoutEvent(ctx context.Context, ev limiters.LockoutEvent) {
	switch ev.Type {
	case limiters.LockoutEventLocked:
		e.metricInc(MetricAccountLocked)
		e.logger.Warn("account locked", "user_id", ev.UserID, "attempts", ev.Attempts, "until", ev.LockedUntil)
		e.emitAudit(ctx, auditEventAccountLocked, true, ev.UserID, ev.UserID, ev.IP, nil, func() map[string]string {
			return map[string]string{
				"attempts":     strconv.Itoa(ev.Attempts),
				"locked_until": ev.LockedUntil.Format(time.RFC3339),
			}
		})
	case limiters.LockoutEventLoginSuccess:
		e.emitAudit(ctx, auditEventLoginSuccess, true, ev.UserID, ev.UserID, ev.IP, nil, nil)
	case limiters.LockoutEventUnlocked:
		e.metricInc(MetricAccountUnlocked)
		e.logger.Info("account unlocked", "user_id", ev.UserID, "by", ev.Actor)
		e.emitAudit(ctx, auditEventAccountUnlocked, true, ev.Actor, ev.UserID, ev.IP, nil, nil)
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var linkErr *LinkMissingError
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrMalformedRefreshToken):
		return auditErrMalformedToken
	case errors.Is(err, ErrRefreshTokenInvalid), errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrRefreshTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrRefreshTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrRefreshHashMismatch):
		return auditErrHashMismatch
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreation
	case errors.Is(err, ErrTwoFactorCodeInvalid):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorRateLimited):
		return auditErrTwoFactorLimited
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPasswordResetInvalid):
		return auditErrResetInvalid
	case errors.Is(err, ErrPasswordResetAttempts):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrPasswordResetRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.As(err, &linkErr), errors.Is(err, ErrAccessLinkMissing):
		return auditErrLinkMissing
	default:
		return auditErrInternal
	}
}
