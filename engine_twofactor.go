package campusAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusAuth/internal/flows"
	"github.com/MrEthical07/campusAuth/internal/limiters"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/twofactor"
)

// EnrollTwoFactor creates a TOTP secret and backup codes for userID. The
// secret is stored enrolled but not enabled; EnableTwoFactor turns it on
// once the user proves their authenticator works.
func (e *Engine) EnrollTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := e.findTwoFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Enrolled {
		return nil, ErrTwoFactorAlreadyEnrolled
	}

	key, err := e.totp.NewKey(e.random, user.Username)
	if err != nil {
		return nil, fmt.Errorf("two-factor enroll: %w", err)
	}
	qr, err := e.totp.QRCodeDataURI(key)
	if err != nil {
		return nil, fmt.Errorf("two-factor enroll: %w", err)
	}
	codes, err := twofactor.GenerateBackupCodes(e.random, e.config.TwoFactor.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("two-factor enroll: %w", err)
	}

	rec := &model.TwoFactorRecord{
		UserID:      userID,
		Secret:      key.Secret(),
		Enrolled:    true,
		Enabled:     false,
		BackupCodes: codes,
		UpdatedAt:   e.clock.Now(),
	}
	if err := e.twoFactor.Save(ctx, rec); err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricTwoFactorEnrolled)
	e.emitAudit(ctx, auditEventTwoFactorEnrolled, true, userID, userID, "", nil, nil)

	return &TwoFactorSetup{
		Secret:        key.Secret(),
		OTPAuthURI:    key.URL(),
		QRCodeDataURI: qr,
		BackupCodes:   append([]string(nil), codes...),
	}, nil
}

// EnableTwoFactor switches an enrolled secret on after checking a TOTP code.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	rec, err := e.findTwoFactor(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Enrolled {
		return ErrTwoFactorNotEnrolled
	}
	if rec.Enabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if err := e.checkTOTP(ctx, rec, code); err != nil {
		return err
	}

	if err := e.twoFactor.SetFlags(ctx, userID, true, true, e.clock.Now()); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, userID, userID, "", nil, nil)
	return nil
}

// DisableTwoFactor turns 2FA off. The secret stays enrolled.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	rec, err := e.findTwoFactor(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Enabled {
		return ErrTwoFactorNotEnabled
	}
	if err := e.checkTOTP(ctx, rec, code); err != nil {
		return err
	}

	if err := e.twoFactor.SetFlags(ctx, userID, true, false, e.clock.Now()); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, userID, userID, "", nil, nil)
	return nil
}

// VerifyTwoFactor checks a TOTP or backup code for userID. It succeeds
// without a code check when the user has no enabled second factor.
// A backup code is consumed on success.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := flows.RunVerifySecondFactor(ctx, userID, code, flows.SecondFactorDeps{
		Find: e.twoFactor.FindByUserID,
		ValidateTOTP: func(code, secret string) bool {
			return e.totp.Validate(code, secret, e.clock.Now())
		},
		ConsumeBackupCode: e.twoFactor.ConsumeBackupCode,
		CheckLimiter:      e.twoFactorLimiter.Check,
		RecordFailure:     e.twoFactorLimiter.RecordFailure,
		ResetLimiter:      e.twoFactorLimiter.Reset,
		NotFound:          model.ErrNotFound,
		RateLimited:       limiters.ErrTwoFactorRateLimited,
	})

	switch res.Failure {
	case flows.SecondFactorFailureNone:
		if res.Method == flows.SecondFactorMethodNone {
			return nil
		}
		e.metricInc(MetricTwoFactorSuccess)
		if res.Method == flows.SecondFactorMethodBackup {
			e.metricInc(MetricBackupCodeUsed)
			e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, userID, "", nil, nil)
		}
		e.emitAudit(ctx, auditEventTwoFactorSuccess, true, userID, userID, "", nil, func() map[string]string {
			return map[string]string{"method": res.Method}
		})
		return nil
	case flows.SecondFactorFailureInvalid:
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, userID, "", ErrTwoFactorCodeInvalid, func() map[string]string {
			if res.Method == "" {
				return nil
			}
			return map[string]string{"method": res.Method}
		})
		return ErrTwoFactorCodeInvalid
	case flows.SecondFactorFailureRateLimited:
		e.metricInc(MetricTwoFactorRateLimited)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, userID, "", ErrTwoFactorRateLimited, nil)
		return ErrTwoFactorRateLimited
	default:
		e.logger.Error("second factor check failed", "user_id", userID, "error", res.Err)
		return storeErr(res.Err)
	}
}

// RegenerateBackupCodes replaces the whole backup-code set. It requires 2FA
// to be enabled and a current TOTP code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.findTwoFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if err := e.checkTOTP(ctx, rec, code); err != nil {
		return nil, err
	}

	codes, err := twofactor.GenerateBackupCodes(e.random, e.config.TwoFactor.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("regenerate backup codes: %w", err)
	}
	if err := e.twoFactor.ReplaceBackupCodes(ctx, userID, codes, e.clock.Now()); err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesRegenerated, true, userID, userID, "", nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprint(len(codes))}
	})
	return append([]string(nil), codes...), nil
}

func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.findTwoFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &TwoFactorStatus{}, nil
	}
	return &TwoFactorStatus{Enrolled: rec.Enrolled, Enabled: rec.Enabled}, nil
}

// findTwoFactor returns nil, nil when userID has no record.
func (e *Engine) findTwoFactor(ctx context.Context, userID string) (*model.TwoFactorRecord, error) {
	rec, err := e.twoFactor.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, storeErr(err)
	}
	return rec, nil
}

// checkTOTP validates a TOTP code under the attempt limiter. Backup codes are
// not accepted here.
func (e *Engine) checkTOTP(ctx context.Context, rec *model.TwoFactorRecord, code string) error {
	if err := e.twoFactorLimiter.Check(ctx, rec.UserID); err != nil {
		if errors.Is(err, limiters.ErrTwoFactorRateLimited) {
			e.metricInc(MetricTwoFactorRateLimited)
			return ErrTwoFactorRateLimited
		}
		return storeErr(err)
	}
	if !e.totp.Validate(code, rec.Secret, e.clock.Now()) {
		_ = e.twoFactorLimiter.RecordFailure(ctx, rec.UserID)
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, rec.UserID, rec.UserID, "", ErrTwoFactorCodeInvalid, nil)
		return ErrTwoFactorCodeInvalid
	}
	_ = e.twoFactorLimiter.Reset(ctx, rec.UserID)
	return nil
}
