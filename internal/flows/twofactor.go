package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/campusAuth/model"
)

// SecondFactorFailureKind classifies second-factor verification failures.
type SecondFactorFailureKind int

const (
	SecondFactorFailureNone SecondFactorFailureKind = iota
	SecondFactorFailureLookup
	SecondFactorFailureRateLimited
	SecondFactorFailureLimiter
	SecondFactorFailureInvalid
	SecondFactorFailureConsume
)

const (
	SecondFactorMethodNone   = "none"
	SecondFactorMethodTOTP   = "totp"
	SecondFactorMethodBackup = "backup_code"
)

const (
	totpCodeLength   = 6
	backupCodeLength = 8
)

// SecondFactorResult reports how the factor was satisfied, or why not.
type SecondFactorResult struct {
	Failure SecondFactorFailureKind
	Err     error
	Method  string
}

// SecondFactorDeps captures second-factor verification dependencies.
type SecondFactorDeps struct {
	Find              func(context.Context, string) (*model.TwoFactorRecord, error)
	ValidateTOTP      func(code, secret string) bool
	ConsumeBackupCode func(ctx context.Context, userID, code string) (bool, error)
	CheckLimiter      func(context.Context, string) error
	RecordFailure     func(context.Context, string) error
	ResetLimiter      func(context.Context, string) error
	NotFound          error
	RateLimited       error
}

// RunVerifySecondFactor checks code for userID. Users without 2FA enabled
// pass trivially. A 6 character code is a TOTP, an 8 character code a
// backup code consumed atomically; anything else fails.
func RunVerifySecondFactor(ctx context.Context, userID, code string, deps SecondFactorDeps) SecondFactorResult {
	rec, err := deps.Find(ctx, userID)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return SecondFactorResult{Method: SecondFactorMethodNone}
		}
		return SecondFactorResult{Failure: SecondFactorFailureLookup, Err: err}
	}
	if !rec.Enabled {
		return SecondFactorResult{Method: SecondFactorMethodNone}
	}

	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, userID); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return SecondFactorResult{Failure: SecondFactorFailureRateLimited, Err: err}
			}
			return SecondFactorResult{Failure: SecondFactorFailureLimiter, Err: err}
		}
	}

	var method string
	ok := false
	switch len(code) {
	case totpCodeLength:
		method = SecondFactorMethodTOTP
		ok = deps.ValidateTOTP(code, rec.Secret)
	case backupCodeLength:
		method = SecondFactorMethodBackup
		ok, err = deps.ConsumeBackupCode(ctx, userID, code)
		if err != nil {
			return SecondFactorResult{Failure: SecondFactorFailureConsume, Err: err, Method: method}
		}
	}

	if !ok {
		if deps.RecordFailure != nil {
			_ = deps.RecordFailure(ctx, userID)
		}
		return SecondFactorResult{Failure: SecondFactorFailureInvalid, Method: method}
	}

	if deps.ResetLimiter != nil {
		_ = deps.ResetLimiter(ctx, userID)
	}
	return SecondFactorResult{Method: method}
}
