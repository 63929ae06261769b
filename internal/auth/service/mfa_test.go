package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/limiter"
)

func TestTwoFactorSetupConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "mona")

	setup, err := f.auth.BeginTwoFactorSetup(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, setup.Secret, 32)
	require.Equal(t, setup.Secret, strings.ReplaceAll(setup.ManualEntryKey, " ", ""))
	require.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/Stocktake:mona@example.com?secret="+setup.Secret))
	require.NotEmpty(t, setup.QRCodePNG)

	// Pending secrets never verify.
	secret, err := cryptox.DecodeSecret(setup.Secret)
	require.NoError(t, err)
	ok, err := f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("code from another secret leaves 2FA off", func(t *testing.T) {
		other, err := cryptox.GenerateSecret(cryptox.TOTPSecretSize)
		require.NoError(t, err)

		ok, err := f.auth.ConfirmTwoFactorSetup(ctx, u.ID, codeAt(other, totpClock))
		require.ErrorIs(t, err, ErrInvalidCode)
		require.False(t, ok)

		got, err := f.store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.TwoFactorEnabled)
	})

	t.Run("valid code activates", func(t *testing.T) {
		ok, err := f.auth.ConfirmTwoFactorSetup(ctx, u.ID, codeAt(secret, totpClock))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := f.store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.TwoFactorEnabled)

		active, err := f.store.TwoFactorSecrets().FindActiveTwoFactorSecret(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, setup.Secret, active.SecretKey)
	})

	t.Run("setup while enabled is refused", func(t *testing.T) {
		_, err := f.auth.BeginTwoFactorSetup(ctx, u.ID)
		require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
	})

	t.Run("verify accepts the drift window only", func(t *testing.T) {
		for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
			ok, err := f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock.Add(d)))
			require.NoError(t, err)
			require.True(t, ok, "offset %s", d)
		}
		ok, err := f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock.Add(-90*time.Second)))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("disable removes the secret", func(t *testing.T) {
		ok, err := f.auth.DisableTwoFactor(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := f.store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.TwoFactorEnabled)

		ok, err = f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
		require.NoError(t, err)
		require.False(t, ok)

		// Login no longer asks for a code.
		_, err = f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
		require.NoError(t, err)

		_, err = f.store.TwoFactorSecrets().GetTwoFactorSecret(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("old secret cannot be confirmed again after disable", func(t *testing.T) {
		ok, err := f.auth.ConfirmTwoFactorSetup(ctx, u.ID, codeAt(secret, totpClock))
		require.ErrorIs(t, err, ErrInvalidCode)
		require.False(t, ok)

		ok, err = f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
		require.NoError(t, err)
		require.False(t, ok)

		got, err := f.store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.TwoFactorEnabled)
	})

	t.Run("fresh setup can be confirmed after disable", func(t *testing.T) {
		again, err := f.auth.BeginTwoFactorSetup(ctx, u.ID)
		require.NoError(t, err)
		require.NotEqual(t, setup.Secret, again.Secret)

		fresh, err := cryptox.DecodeSecret(again.Secret)
		require.NoError(t, err)
		ok, err := f.auth.ConfirmTwoFactorSetup(ctx, u.ID, codeAt(fresh, totpClock))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
		require.NoError(t, err)
		require.False(t, ok, "old secret stays dead")
	})
}

func TestConfirmRejectsActiveSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "pete")

	setup, err := f.auth.BeginTwoFactorSetup(ctx, u.ID)
	require.NoError(t, err)
	secret, err := cryptox.DecodeSecret(setup.Secret)
	require.NoError(t, err)

	// Secret active while the user flag is off.
	require.NoError(t, f.store.TwoFactorSecrets().SetTwoFactorActive(ctx, u.ID, true))

	ok, err := f.auth.ConfirmTwoFactorSetup(ctx, u.ID, codeAt(secret, totpClock))
	require.ErrorIs(t, err, ErrInvalidCode)
	require.False(t, ok)
}

func TestTwoFactorSetupReplacesPendingSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "nick")

	first, err := f.auth.BeginTwoFactorSetup(ctx, u.ID)
	require.NoError(t, err)
	second, err := f.auth.BeginTwoFactorSetup(ctx, u.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	stale, err := cryptox.DecodeSecret(first.Secret)
	require.NoError(t, err)
	_, err = f.auth.ConfirmTwoFactorSetup(ctx, u.ID, codeAt(stale, totpClock))
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestTwoFactorUnknownPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.BeginTwoFactorSetup(ctx, "missing")
	require.ErrorIs(t, err, ErrPrincipalNotFound)

	_, err = f.auth.ConfirmTwoFactorSetup(ctx, "missing", "123456")
	require.ErrorIs(t, err, ErrPrincipalNotFound)

	_, err = f.auth.DisableTwoFactor(ctx, "missing")
	require.ErrorIs(t, err, ErrPrincipalNotFound)

	ok, err := f.auth.VerifyTwoFactorCode(ctx, "missing", "123456")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConfirmWithoutSetup(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "olga")

	ok, err := f.auth.ConfirmTwoFactorSetup(context.Background(), u.ID, "123456")
	require.ErrorIs(t, err, ErrInvalidCode)
	require.False(t, ok)
}

func TestTwoFactorAttemptLimiter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "pete")
	secret := f.enableTwoFactor(t, u.ID)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	f.auth.Limiter = limiter.NewTOTPLimiter(rdb, limiter.TOTPConfig{MaxAttempts: 3, Cooldown: time.Minute})

	for range 3 {
		ok, err := f.auth.VerifyTwoFactorCode(ctx, u.ID, "999999x")
		require.NoError(t, err)
		require.False(t, ok)
	}

	// Locked out even with the right code.
	_, err = f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
	require.ErrorIs(t, err, ErrTooManyAttempts)
	_, err = f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword, Code: codeAt(secret, totpClock)})
	require.ErrorIs(t, err, ErrTooManyAttempts)

	mr.FastForward(time.Minute + time.Second)
	ok, err := f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTwoFactorLimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "quinn")
	secret := f.enableTwoFactor(t, u.ID)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	f.auth.Limiter = limiter.NewTOTPLimiter(rdb, limiter.TOTPConfig{})

	ok, err := f.auth.VerifyTwoFactorCode(ctx, u.ID, codeAt(secret, totpClock))
	require.NoError(t, err)
	require.True(t, ok)
}
