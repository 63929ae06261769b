package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
	"github.com/aussiebroadwan/stocktake/pkg/totp"
)

// BeginTwoFactorSetup generates a new TOTP secret and stores it inactive,
// replacing any earlier pending secret. 2FA is not enabled until
// ConfirmTwoFactorSetup succeeds.
func (s *AuthService) BeginTwoFactorSetup(ctx context.Context, userID string) (*domain.TwoFactorSetup, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	raw, err := cryptox.GenerateSecret(cryptox.TOTPSecretSize)
	if err != nil {
		return nil, err
	}
	encoded := cryptox.EncodeSecret(raw)

	if err := s.Store.TwoFactorSecrets().UpsertTwoFactorSecret(ctx, domain.TwoFactorSecret{
		UserID:    u.ID,
		SecretKey: encoded,
		IsActive:  false,
	}); err != nil {
		return nil, fmt.Errorf("store two factor secret: %w", err)
	}

	uri := totp.ProvisioningURI(s.Issuer, u.Email, encoded)
	png, err := totp.QRCodePNG(uri, totp.DefaultQRSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	slogx.FromContext(ctx).Info("two factor setup started", "user_id", u.ID)

	return &domain.TwoFactorSetup{
		Secret:          encoded,
		ProvisioningURI: uri,
		ManualEntryKey:  cryptox.FormatForManualEntry(encoded),
		QRCodePNG:       png,
	}, nil
}

// ConfirmTwoFactorSetup checks code against the pending secret. On success
// the secret is activated and the user flag set in one transaction. On
// failure nothing changes.
func (s *AuthService) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) (bool, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrPrincipalNotFound
		}
		return false, fmt.Errorf("load user: %w", err)
	}
	if u.TwoFactorEnabled {
		return false, ErrTwoFactorAlreadyEnabled
	}

	pending, err := s.Store.TwoFactorSecrets().GetTwoFactorSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrInvalidCode
		}
		return false, fmt.Errorf("load two factor secret: %w", err)
	}
	if pending.IsActive {
		// Flag and secret disagree; only a new setup can repair that.
		return false, ErrInvalidCode
	}

	ok, err := s.checkCode(ctx, userID, pending.SecretKey, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidCode
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// A concurrent setup may have replaced the secret we just verified.
		cur, err := tx.TwoFactorSecrets().GetTwoFactorSecret(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCode
			}
			return err
		}
		if cur.SecretKey != pending.SecretKey || cur.IsActive {
			return ErrInvalidCode
		}

		if err := tx.TwoFactorSecrets().SetTwoFactorActive(ctx, userID, true); err != nil {
			return err
		}
		if err := tx.Users().SetTwoFactorEnabled(ctx, userID, true); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPrincipalNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	slogx.FromContext(ctx).Info("two factor enabled", "user_id", userID)
	return true, nil
}

// DisableTwoFactor deletes the secret and clears the user flag. Turning
// 2FA back on needs a fresh BeginTwoFactorSetup.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID string) (bool, error) {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetTwoFactorEnabled(ctx, userID, false); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPrincipalNotFound
			}
			return err
		}
		return tx.TwoFactorSecrets().DeleteTwoFactorSecret(ctx, userID)
	})
	if err != nil {
		return false, err
	}

	slogx.FromContext(ctx).Info("two factor disabled", "user_id", userID)
	return true, nil
}

// VerifyTwoFactorCode is a step-up check against the active secret. Users
// without one get false rather than an error.
func (s *AuthService) VerifyTwoFactorCode(ctx context.Context, userID, code string) (bool, error) {
	sec, err := s.Store.TwoFactorSecrets().FindActiveTwoFactorSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load two factor secret: %w", err)
	}
	return s.checkCode(ctx, userID, sec.SecretKey, code)
}

// verifyActiveCode is the login variant of VerifyTwoFactorCode. A user
// flagged for 2FA without an active secret can never pass.
func (s *AuthService) verifyActiveCode(ctx context.Context, userID, code string) (bool, error) {
	sec, err := s.Store.TwoFactorSecrets().FindActiveTwoFactorSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Error("two factor enabled without an active secret", "user_id", userID)
			return false, nil
		}
		return false, fmt.Errorf("load two factor secret: %w", err)
	}
	return s.checkCode(ctx, userID, sec.SecretKey, code)
}

func (s *AuthService) checkCode(ctx context.Context, userID, encodedSecret, code string) (bool, error) {
	secret, err := cryptox.DecodeSecret(encodedSecret)
	if err != nil {
		return false, fmt.Errorf("decode two factor secret for %s: %w", userID, err)
	}

	code = strings.TrimSpace(code)
	return limitedVerify(ctx, s.Limiter, userID, func() bool {
		return s.TOTP.Verify(secret, code)
	})
}
