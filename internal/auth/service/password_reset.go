package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/idx"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

// ResetNotifier delivers a raw password reset token to its owner.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, u domain.User, token string, expiresAt time.Time) error
}

// LogResetNotifier writes reset tokens to the log. Development only.
type LogResetNotifier struct {
	Logger *slog.Logger
}

func (n LogResetNotifier) NotifyPasswordReset(ctx context.Context, u domain.User, token string, expiresAt time.Time) error {
	l := n.Logger
	if l == nil {
		l = slogx.FromContext(ctx)
	}
	l.Info("password reset requested",
		"user_id", u.ID,
		"email", u.Email,
		"reset_token", token,
		"expires_at", expiresAt,
	)
	return nil
}

// RequestPasswordReset mints a reset token for an active user with that
// email. Unknown or inactive emails succeed silently so the caller learns
// nothing about which accounts exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)
	now := s.now()

	u, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Debug("password reset for unknown email")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		l.Debug("password reset for inactive user", "user_id", u.ID)
		return nil
	}

	raw, err := cryptox.GenerateOpaqueToken()
	if err != nil {
		return err
	}

	ttl := s.ResetTTL
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	t := domain.PasswordResetToken{
		ID:        idx.NewAt(now).String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.Store.PasswordResetTokens().CreatePasswordResetToken(ctx, t); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	notifier := s.Notifier
	if notifier == nil {
		notifier = LogResetNotifier{}
	}
	if err := notifier.NotifyPasswordReset(ctx, u, raw, t.ExpiresAt); err != nil {
		return fmt.Errorf("notify password reset: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The token
// is marked used conditionally, so only one caller can win, and every
// refresh token of the user is revoked in the same transaction.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return ErrInvalidResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	hash := cryptox.FingerprintToken(raw)
	now := s.now()

	var userID string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		t, err := tx.PasswordResetTokens().FindUsablePasswordResetToken(ctx, hash, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}
		if err := tx.PasswordResetTokens().MarkPasswordResetTokenUsed(ctx, hash); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}

		u, err := tx.Users().GetUserByID(ctx, t.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}
		if !u.IsActive {
			return ErrInvalidResetToken
		}

		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, newHash); err != nil {
			return err
		}
		userID = u.ID
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, u.ID)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password reset completed", "user_id", userID)
	return nil
}
