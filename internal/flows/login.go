package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

// CredentialFailureKind classifies credential-check failures for root-level mapping.
type CredentialFailureKind int

const (
	CredentialFailureNone CredentialFailureKind = iota
	CredentialFailureUnknownUser
	CredentialFailureLookup
	CredentialFailureLocked
	CredentialFailureLockoutStore
	CredentialFailureMismatch
	CredentialFailureVerify
)

// CredentialResult carries the authenticated user or failure metadata.
type CredentialResult struct {
	Failure   CredentialFailureKind
	Err       error
	User      *model.User
	Remaining time.Duration
}

// CredentialDeps captures credential validation dependencies.
type CredentialDeps struct {
	FindUser         func(context.Context, string) (*model.User, error)
	IsLocked         func(context.Context, *model.User) (bool, error)
	RemainingLockout func(*model.User) time.Duration
	VerifyPassword   func(password, encoded string) (bool, error)
	RecordFailure    func(context.Context, *model.User, string) error
	RecordSuccess    func(context.Context, *model.User, string) error
	// DummyHash is verified against when the user does not exist so both
	// branches cost one hash comparison.
	DummyHash string
	NotFound  error
}

// RunValidateCredentials looks the user up, enforces lockout, and checks the
// password. Unknown users and wrong passwords are indistinguishable to the
// caller of the engine; the kinds differ only for metrics and audit.
func RunValidateCredentials(ctx context.Context, username, password, ip string, deps CredentialDeps) CredentialResult {
	user, err := deps.FindUser(ctx, username)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DummyHash)
			}
			return CredentialResult{Failure: CredentialFailureUnknownUser, Err: err}
		}
		return CredentialResult{Failure: CredentialFailureLookup, Err: err}
	}

	locked, err := deps.IsLocked(ctx, user)
	if err != nil {
		return CredentialResult{Failure: CredentialFailureLockoutStore, Err: err, User: user}
	}
	if locked {
		return CredentialResult{
			Failure:   CredentialFailureLocked,
			User:      user,
			Remaining: deps.RemainingLockout(user),
		}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return CredentialResult{Failure: CredentialFailureVerify, Err: err, User: user}
	}
	if !ok {
		if err := deps.RecordFailure(ctx, user, ip); err != nil {
			return CredentialResult{Failure: CredentialFailureLockoutStore, Err: err, User: user}
		}
		return CredentialResult{Failure: CredentialFailureMismatch, User: user}
	}

	if err := deps.RecordSuccess(ctx, user, ip); err != nil {
		return CredentialResult{Failure: CredentialFailureLockoutStore, Err: err, User: user}
	}
	return CredentialResult{Failure: CredentialFailureNone, User: user}
}
