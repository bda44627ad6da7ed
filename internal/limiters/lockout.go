package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

// LockoutConfig holds the account lockout policy.
type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// LockoutEventType names the transitions AccountLockout reports.
type LockoutEventType string

const (
	LockoutEventLocked       LockoutEventType = "account_locked"
	LockoutEventLoginSuccess LockoutEventType = "login_success"
	LockoutEventUnlocked     LockoutEventType = "account_unlocked"
)

// LockoutEvent is handed to the Emit hook after the state change is persisted.
type LockoutEvent struct {
	Type        LockoutEventType
	UserID      string
	IP          string
	Actor       string
	Attempts    int
	LockedUntil time.Time
}

// LockoutHooks supplies the clock, persistence and audit used by AccountLockout.
type LockoutHooks struct {
	Now  func() time.Time
	Save func(context.Context, *model.User) error
	Emit func(context.Context, LockoutEvent)
}

// AccountLockout keeps failed-login state on the user row itself:
// unlocked, then locked until LockedUntil, then unlocked again once the time
// passes or an admin intervenes.
type AccountLockout struct {
	config LockoutConfig
	hooks  LockoutHooks
}

var errNoSave = errors.New("lockout: no save hook configured")

func NewAccountLockout(cfg LockoutConfig, hooks LockoutHooks) *AccountLockout {
	if hooks.Now == nil {
		hooks.Now = func() time.Time { return time.Now().UTC() }
	}
	if hooks.Save == nil {
		hooks.Save = func(context.Context, *model.User) error { return errNoSave }
	}
	return &AccountLockout{config: cfg, hooks: hooks}
}

// IsLocked reports whether u is currently locked. An elapsed lock is cleared
// and persisted before returning false, so the caller's password check always
// sees a clean row.
func (l *AccountLockout) IsLocked(ctx context.Context, u *model.User) (bool, error) {
	if u.LockedUntil == nil {
		return false, nil
	}
	now := l.hooks.Now()
	if now.Before(*u.LockedUntil) {
		return true, nil
	}

	reset(u, now)
	if err := l.hooks.Save(ctx, u); err != nil {
		return false, err
	}
	return false, nil
}

// RecordFailure counts a wrong password and locks the account when the count
// reaches the threshold.
func (l *AccountLockout) RecordFailure(ctx context.Context, u *model.User, ip string) error {
	now := l.hooks.Now()
	u.FailedLoginAttempts++
	u.LastFailedLoginAt = &now
	u.UpdatedAt = now

	locked := false
	if l.config.MaxFailedAttempts > 0 && u.FailedLoginAttempts >= l.config.MaxFailedAttempts {
		until := now.Add(l.config.Duration)
		u.LockedUntil = &until
		locked = true
	}

	if err := l.hooks.Save(ctx, u); err != nil {
		return err
	}
	if locked {
		l.emit(ctx, LockoutEvent{
			Type:        LockoutEventLocked,
			UserID:      u.ID,
			IP:          ip,
			Attempts:    u.FailedLoginAttempts,
			LockedUntil: *u.LockedUntil,
		})
	}
	return nil
}

// RecordSuccess clears non-zero counters and always reports the login.
func (l *AccountLockout) RecordSuccess(ctx context.Context, u *model.User, ip string) error {
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil || u.LastFailedLoginAt != nil {
		reset(u, l.hooks.Now())
		if err := l.hooks.Save(ctx, u); err != nil {
			return err
		}
	}
	l.emit(ctx, LockoutEvent{Type: LockoutEventLoginSuccess, UserID: u.ID, IP: ip})
	return nil
}

// Unlock resets unconditionally. Unlocking an unlocked account still persists
// and reports.
func (l *AccountLockout) Unlock(ctx context.Context, u *model.User, unlockedBy string) error {
	reset(u, l.hooks.Now())
	if err := l.hooks.Save(ctx, u); err != nil {
		return err
	}
	l.emit(ctx, LockoutEvent{Type: LockoutEventUnlocked, UserID: u.ID, Actor: unlockedBy})
	return nil
}

// RemainingLockout is zero when u is not locked.
func (l *AccountLockout) RemainingLockout(u *model.User) time.Duration {
	if u.LockedUntil == nil {
		return 0
	}
	d := u.LockedUntil.Sub(l.hooks.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (l *AccountLockout) RemainingAttempts(u *model.User) int {
	n := l.config.MaxFailedAttempts - u.FailedLoginAttempts
	if n < 0 {
		return 0
	}
	return n
}

func (l *AccountLockout) emit(ctx context.Context, ev LockoutEvent) {
	if l.hooks.Emit != nil {
		l.hooks.Emit(ctx, ev)
	}
}

func reset(u *model.User, now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastFailedLoginAt = nil
	u.UpdatedAt = now
}
