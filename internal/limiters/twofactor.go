package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTwoFactorMaxAttempts = 5
	defaultTwoFactorCooldown    = time.Minute
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorLimiterConfig holds thresholds for second-factor attempts.
type TwoFactorLimiterConfig struct {
	Prefix      string
	MaxAttempts int
	Cooldown    time.Duration
}

// TwoFactorLimiter counts wrong TOTP and backup codes per user within a
// cooldown window. Both code kinds share one budget.
type TwoFactorLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewTwoFactorLimiter falls back to 5 attempts per minute for zero fields.
func NewTwoFactorLimiter(client redis.UniversalClient, cfg TwoFactorLimiterConfig) *TwoFactorLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultTwoFactorMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultTwoFactorCooldown
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "campus"
	}
	return &TwoFactorLimiter{redis: client, prefix: prefix, maxAttempts: int64(max), cooldown: cd}
}

func (l *TwoFactorLimiter) key(userID string) string {
	return l.prefix + ":tfa:" + userID
}

// Check fails once the user has used up the window's budget.
func (l *TwoFactorLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

// RecordFailure counts one wrong code.
func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := hitWindow(ctx, l.redis, l.key(userID), l.cooldown)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *TwoFactorLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}
