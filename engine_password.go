package campusAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusAuth/internal/limiters"
	"github.com/MrEthical07/campusAuth/internal/stores"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/refresh"
	"github.com/google/uuid"
)

// ValidatePassword checks pw against the configured policy.
func (e *Engine) ValidatePassword(pw string) password.Result {
	if e == nil {
		return password.Result{}
	}
	return e.policy.Validate(pw)
}

// PasswordRequirements lists the policy rules in human-readable form.
func (e *Engine) PasswordRequirements() []string {
	if e == nil {
		return nil
	}
	return e.policy.Requirements()
}

// ChangePassword replaces the password of userID after checking the current
// one. A wrong current password does not count toward lockout; the caller
// already holds a session.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, userID, "", err, nil)
		return err
	}

	ok, err := e.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		e.logger.Error("password verify failed", "user_id", userID, "error", err)
		return fail(ErrInvalidCredentials)
	}
	if !ok {
		return fail(ErrInvalidCredentials)
	}
	if next == current {
		return fail(ErrPasswordReuse)
	}
	if res := e.policy.Validate(next); !res.Valid {
		return fail(&PolicyViolationError{Violations: res.Errors})
	}

	if err := e.setPassword(ctx, user, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, userID, "", nil, nil)
	return nil
}

// RequestPasswordReset mails a one-time reset token to email. An unknown or
// empty address is a silent success so the endpoint cannot be used to probe
// for accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.mailer == nil || e.resetStore == nil {
		return ErrPasswordResetDisabled
	}
	if email == "" {
		return nil
	}

	if err := e.resetLimiter.CheckRequest(ctx, email); err != nil {
		if errors.Is(err, limiters.ErrResetRateLimited) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", "", ErrPasswordResetRateLimited, nil)
			return ErrPasswordResetRateLimited
		}
		return storeErr(err)
	}
	e.metricInc(MetricPasswordResetRequest)

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", "", ErrUserNotFound, nil)
			return nil
		}
		return storeErr(err)
	}

	id, err := uuid.NewRandomFromReader(e.random)
	if err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	secret, err := refresh.NewSecret(e.random, refresh.MinSecretBytes)
	if err != nil {
		return fmt.Errorf("password reset: %w", err)
	}

	ttl := e.config.PasswordReset.TTL
	record := &stores.PasswordResetRecord{
		UserID:     user.ID,
		SecretHash: refresh.Hash(secret),
		ExpiresAt:  e.clock.Now().Add(ttl).Unix(),
	}
	if err := e.resetStore.Save(ctx, id.String(), record, ttl); err != nil {
		return storeErr(err)
	}

	token := refresh.Encode(id.String(), secret)
	body := token
	if e.config.PasswordReset.Link != "" {
		body = fmt.Sprintf(e.config.PasswordReset.Link, token)
	}
	if err := e.mailer.Send(ctx, user.Email, e.config.PasswordReset.Subject, body); err != nil {
		// The caller learns nothing more than for an unknown address.
		e.logger.Error("password reset mail failed", "user_id", user.ID, "error", err)
		return nil
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, user.ID, "", nil, nil)
	return nil
}

// ConfirmPasswordReset sets a new password using a token from
// RequestPasswordReset. The token is single use. The new password is checked
// against the policy before the token is spent.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.resetStore == nil {
		return ErrPasswordResetDisabled
	}

	fail := func(userID string, err error) error {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, userID, "", err, nil)
		return err
	}

	if res := e.policy.Validate(newPassword); !res.Valid {
		return fail("", &PolicyViolationError{Violations: res.Errors})
	}

	id, secret, err := refresh.Parse(token)
	if err != nil {
		return fail("", ErrPasswordResetInvalid)
	}

	record, err := e.resetStore.Consume(ctx, id, refresh.Hash(secret), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrResetNotFound), errors.Is(err, stores.ErrResetSecretMismatch):
			return fail("", ErrPasswordResetInvalid)
		case errors.Is(err, stores.ErrResetAttemptsExceeded):
			return fail("", ErrPasswordResetAttempts)
		default:
			return storeErr(err)
		}
	}

	user, err := e.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fail(record.UserID, ErrPasswordResetInvalid)
		}
		return storeErr(err)
	}
	if err := e.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, user.ID, "", nil, nil)
	return nil
}

// setPassword hashes pw, clears the lockout counters and saves the user.
func (e *Engine) setPassword(ctx context.Context, user *model.User, pw string) error {
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastFailedLoginAt = nil
	user.UpdatedAt = e.clock.Now()
	if err := e.users.Save(ctx, user); err != nil {
		e.logger.Error("user save failed", "user_id", user.ID, "error", err)
		return storeErr(err)
	}
	return nil
}
