package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type PasswordResetConfig struct {
	Prefix      string
	Window      time.Duration
	MaxRequests int
}

// PasswordResetLimiter throttles reset requests per email address so the
// mailer cannot be used to flood an inbox.
type PasswordResetLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config PasswordResetConfig
}

func NewPasswordResetLimiter(client redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "campus"
	}
	return &PasswordResetLimiter{redis: client, prefix: prefix, config: cfg}
}

// CheckRequest counts one request for email and fails past the budget.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, email string) error {
	if l == nil || l.config.MaxRequests <= 0 {
		return nil
	}
	key := l.prefix + ":prr:" + strings.ToLower(strings.TrimSpace(email))
	count, err := hitWindow(ctx, l.redis, key, l.config.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if count > int64(l.config.MaxRequests) {
		return ErrResetRateLimited
	}
	return nil
}
