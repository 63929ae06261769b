// Package limiter holds Redis backed attempt counters.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTOTPMaxAttempts = 5
	DefaultTOTPCooldown    = time.Minute

	totpKeyPrefix = "totp:att:"
)

var (
	ErrRateLimited = errors.New("limiter: too many attempts")
	ErrUnavailable = errors.New("limiter: backend unavailable")
)

// TOTPConfig holds the thresholds for TOTPLimiter. Zero values fall back to
// 5 attempts per minute.
type TOTPConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// TOTPLimiter counts failed second-factor codes per user. The counter starts
// its cooldown on the first failure and is cleared on success.
type TOTPLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	cooldown    time.Duration
}

func NewTOTPLimiter(client redis.UniversalClient, cfg TOTPConfig) *TOTPLimiter {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultTOTPMaxAttempts
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultTOTPCooldown
	}
	return &TOTPLimiter{redis: client, maxAttempts: int64(maxAttempts), cooldown: cooldown}
}

func (l *TOTPLimiter) key(userID string) string {
	return totpKeyPrefix + userID
}

// Check returns ErrRateLimited once the user has used up their attempts.
func (l *TOTPLimiter) Check(ctx context.Context, userID string) error {
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure bumps the counter. It returns ErrRateLimited when this
// failure used the last attempt.
func (l *TOTPLimiter) RecordFailure(ctx context.Context, userID string) error {
	key := l.key(userID)

	// INCR and EXPIRE NX in one round trip; NX keeps the window anchored at
	// the first failure.
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.cooldown)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if incr.Val() >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter after a successful code.
func (l *TOTPLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
