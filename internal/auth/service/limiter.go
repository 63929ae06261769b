package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/stocktake/pkg/limiter"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

// AttemptLimiter counts failed code checks per user. *limiter.TOTPLimiter
// is the Redis implementation.
type AttemptLimiter interface {
	Check(ctx context.Context, userID string) error
	RecordFailure(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

// NoopLimiter never limits. Used when Redis is not configured.
type NoopLimiter struct{}

func (NoopLimiter) Check(context.Context, string) error         { return nil }
func (NoopLimiter) RecordFailure(context.Context, string) error { return nil }
func (NoopLimiter) Reset(context.Context, string) error         { return nil }

var _ AttemptLimiter = (*limiter.TOTPLimiter)(nil)

// limitedVerify runs verify between the limiter's Check and its
// RecordFailure/Reset. A limiter backend outage fails open.
func limitedVerify(ctx context.Context, lim AttemptLimiter, userID string, verify func() bool) (bool, error) {
	l := slogx.FromContext(ctx)
	if lim == nil {
		lim = NoopLimiter{}
	}

	if err := lim.Check(ctx, userID); err != nil {
		if errors.Is(err, limiter.ErrRateLimited) {
			l.Warn("two factor attempts exhausted", "user_id", userID)
			return false, ErrTooManyAttempts
		}
		l.Warn("attempt limiter unavailable", "error", err)
	}

	if verify() {
		if err := lim.Reset(ctx, userID); err != nil {
			l.Warn("failed to reset attempt counter", "error", err, "user_id", userID)
		}
		return true, nil
	}

	if err := lim.RecordFailure(ctx, userID); err != nil && !errors.Is(err, limiter.ErrRateLimited) {
		l.Warn("failed to record code failure", "error", err, "user_id", userID)
	}
	return false, nil
}
