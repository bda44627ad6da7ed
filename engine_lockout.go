package campusAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/campusAuth/model"
)

// UnlockAccount clears the lockout state of userID. It is idempotent and
// meant for administrators; unlockedBy is recorded in the audit trail.
func (e *Engine) UnlockAccount(ctx context.Context, userID, unlockedBy string) error {
	if err := e.ready(); err != nil {
		return err
	}
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.lockout.Unlock(ctx, user, unlockedBy); err != nil {
		e.logger.Error("unlock failed", "user_id", userID, "error", err)
		return storeErr(err)
	}
	return nil
}

// LockoutStatus reports the failed-login state of userID. An elapsed lock is
// cleared first, the same way a login attempt would.
func (e *Engine) LockoutStatus(ctx context.Context, userID string) (*LockoutStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	locked, err := e.lockout.IsLocked(ctx, user)
	if err != nil {
		return nil, storeErr(err)
	}

	status := &LockoutStatus{
		Locked:              locked,
		FailedLoginAttempts: user.FailedLoginAttempts,
		RemainingAttempts:   e.lockout.RemainingAttempts(user),
	}
	if locked {
		until := *user.LockedUntil
		status.LockedUntil = &until
		status.RemainingMs = e.lockout.RemainingLockout(user).Milliseconds()
	}
	return status, nil
}

// findUser maps a missing row to ErrUserNotFound.
func (e *Engine) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr(err)
	}
	return user, nil
}
