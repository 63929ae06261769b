// Package storetest is a conformance suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/idx"
)

// Factory returns a fresh, migrated and empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against the driver built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("RefreshTokens", func(t *testing.T) { testRefreshTokens(t, newStore(t)) })
	t.Run("ConcurrentConsume", func(t *testing.T) { testConcurrentConsume(t, newStore(t)) })
	t.Run("PasswordResetTokens", func(t *testing.T) { testPasswordResetTokens(t, newStore(t)) })
	t.Run("TwoFactorSecrets", func(t *testing.T) { testTwoFactorSecrets(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
}

// Now is the fixed reference time the suite evaluates expiry against.
var Now = time.Unix(1_700_000_000, 0).UTC()

// NewUser returns an active staff user with unique name and email.
func NewUser(name string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Roles:        []string{domain.RoleStaff},
		IsActive:     true,
	}
}

// SeedUser creates a user and fails the test on error.
func SeedUser(t *testing.T, s store.Store, name string) domain.User {
	t.Helper()
	u := NewUser(name)
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func newRefreshToken(userID string, expiresAt time.Time) (domain.RefreshToken, string) {
	raw, _ := cryptox.GenerateOpaqueToken()
	return domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: Now,
	}, raw
}

func closeOnCleanup(t *testing.T, s store.Store) {
	t.Cleanup(func() { _ = s.Close() })
}

func testUsers(t *testing.T, s store.Store) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	u := NewUser("alice")
	u.Roles = []string{"staff", "admin"}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Username, got.Username)
	require.Equal(t, u.Email, got.Email)
	require.Equal(t, u.PasswordHash, got.PasswordHash)
	require.Equal(t, []string{"staff", "admin"}, got.Roles)
	require.True(t, got.IsActive)
	require.False(t, got.TwoFactorEnabled)
	require.False(t, got.CreatedAt.IsZero())

	t.Run("email lookup ignores case", func(t *testing.T) {
		got, err := s.Users().GetUserByEmail(ctx, "ALICE@Example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("duplicates rejected", func(t *testing.T) {
		dupName := NewUser("alice")
		dupName.Email = "other@example.com"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dupName), store.ErrAlreadyExists)

		dupEmail := NewUser("alice2")
		dupEmail.Email = u.Email
		require.ErrorIs(t, s.Users().CreateUser(ctx, dupEmail), store.ErrAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := s.Users().GetUserByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Users().GetUserByEmail(ctx, "nope@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Users().SetActive(ctx, "nope", false), store.ErrNotFound)
	})

	t.Run("mutations", func(t *testing.T) {
		require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "new-hash"))
		require.NoError(t, s.Users().SetTwoFactorEnabled(ctx, u.ID, true))
		require.NoError(t, s.Users().SetActive(ctx, u.ID, false))

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "new-hash", got.PasswordHash)
		require.True(t, got.TwoFactorEnabled)
		require.False(t, got.IsActive)
	})
}

func testRefreshTokens(t *testing.T, s store.Store) {
	closeOnCleanup(t, s)
	ctx := context.Background()
	u := SeedUser(t, s, "bob")
	repo := s.RefreshTokens()

	live, _ := newRefreshToken(u.ID, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRefreshToken(ctx, live))

	got, err := repo.FindValidRefreshToken(ctx, live.TokenHash, Now)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.Equal(t, live.ExpiresAt.Unix(), got.ExpiresAt.Unix())

	t.Run("duplicate hash rejected", func(t *testing.T) {
		dup := live
		dup.ID = idx.New().String()
		require.ErrorIs(t, repo.CreateRefreshToken(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("expired is not valid", func(t *testing.T) {
		_, err := repo.FindValidRefreshToken(ctx, live.TokenHash, Now.Add(2*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = repo.ConsumeRefreshToken(ctx, live.TokenHash, Now.Add(2*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("consume is single use", func(t *testing.T) {
		tok, _ := newRefreshToken(u.ID, Now.Add(time.Hour))
		require.NoError(t, repo.CreateRefreshToken(ctx, tok))

		consumed, err := repo.ConsumeRefreshToken(ctx, tok.TokenHash, Now)
		require.NoError(t, err)
		require.Equal(t, u.ID, consumed.UserID)
		require.True(t, consumed.Revoked)

		_, err = repo.ConsumeRefreshToken(ctx, tok.TokenHash, Now)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = repo.FindValidRefreshToken(ctx, tok.TokenHash, Now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := repo.FindValidRefreshToken(ctx, "unknown", Now)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = repo.ConsumeRefreshToken(ctx, "unknown", Now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		tok, _ := newRefreshToken(u.ID, Now.Add(time.Hour))
		require.NoError(t, repo.CreateRefreshToken(ctx, tok))

		require.NoError(t, repo.RevokeRefreshToken(ctx, tok.TokenHash))
		require.NoError(t, repo.RevokeRefreshToken(ctx, tok.TokenHash))
		require.NoError(t, repo.RevokeRefreshToken(ctx, "never-existed"))

		_, err := repo.FindValidRefreshToken(ctx, tok.TokenHash, Now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke all for user", func(t *testing.T) {
		other := SeedUser(t, s, "carol")
		a, _ := newRefreshToken(other.ID, Now.Add(time.Hour))
		b, _ := newRefreshToken(other.ID, Now.Add(time.Hour))
		require.NoError(t, repo.CreateRefreshToken(ctx, a))
		require.NoError(t, repo.CreateRefreshToken(ctx, b))

		require.NoError(t, repo.RevokeAllUserRefreshTokens(ctx, other.ID))

		for _, h := range []string{a.TokenHash, b.TokenHash} {
			_, err := repo.FindValidRefreshToken(ctx, h, Now)
			require.ErrorIs(t, err, store.ErrNotFound)
		}
		// Bob's live token is untouched.
		_, err := repo.FindValidRefreshToken(ctx, live.TokenHash, Now)
		require.NoError(t, err)
	})

	t.Run("delete expired", func(t *testing.T) {
		old, _ := newRefreshToken(u.ID, Now.Add(-time.Minute))
		require.NoError(t, repo.CreateRefreshToken(ctx, old))

		n, err := repo.DeleteExpiredRefreshTokens(ctx, Now)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		_, err = repo.FindValidRefreshToken(ctx, live.TokenHash, Now)
		require.NoError(t, err)
	})
}

func testConcurrentConsume(t *testing.T, s store.Store) {
	closeOnCleanup(t, s)
	ctx := context.Background()
	u := SeedUser(t, s, "dave")

	tok, _ := newRefreshToken(u.ID, Now.Add(time.Hour))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, tok))

	const racers = 8
	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		notFound atomic.Int32
		start    = make(chan struct{})
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.RefreshTokens().ConsumeRefreshToken(ctx, tok.TokenHash, Now)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, racers-1, notFound.Load())
}

func testPasswordResetTokens(t *testing.T, s store.Store) {
	closeOnCleanup(t, s)
	ctx := context.Background()
	u := SeedUser(t, s, "erin")
	repo := s.PasswordResetTokens()

	raw, err := cryptox.GenerateOpaqueToken()
	require.NoError(t, err)
	tok := domain.PasswordResetToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: Now.Add(time.Hour),
		CreatedAt: Now,
	}
	require.NoError(t, repo.CreatePasswordResetToken(ctx, tok))

	got, err := repo.FindUsablePasswordResetToken(ctx, tok.TokenHash, Now)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.False(t, got.Used)

	_, err = repo.FindUsablePasswordResetToken(ctx, tok.TokenHash, Now.Add(2*time.Hour))
	require.ErrorIs(t, err, store.ErrNotFound, "expired token must not be usable")

	require.NoError(t, repo.MarkPasswordResetTokenUsed(ctx, tok.TokenHash))
	_, err = repo.FindUsablePasswordResetToken(ctx, tok.TokenHash, Now)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, repo.MarkPasswordResetTokenUsed(ctx, tok.TokenHash), store.ErrNotFound)
	require.ErrorIs(t, repo.MarkPasswordResetTokenUsed(ctx, "unknown"), store.ErrNotFound)

	t.Run("delete expired and used", func(t *testing.T) {
		fresh := domain.PasswordResetToken{
			ID:        idx.New().String(),
			UserID:    u.ID,
			TokenHash: "fresh-hash",
			ExpiresAt: Now.Add(time.Hour),
			CreatedAt: Now,
		}
		require.NoError(t, repo.CreatePasswordResetToken(ctx, fresh))

		n, err := repo.DeleteExpiredPasswordResetTokens(ctx, Now)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		_, err = repo.FindUsablePasswordResetToken(ctx, fresh.TokenHash, Now)
		require.NoError(t, err)
	})
}

func testTwoFactorSecrets(t *testing.T, s store.Store) {
	closeOnCleanup(t, s)
	ctx := context.Background()
	u := SeedUser(t, s, "frank")
	repo := s.TwoFactorSecrets()

	_, err := repo.GetTwoFactorSecret(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, repo.SetTwoFactorActive(ctx, u.ID, true), store.ErrNotFound)

	require.NoError(t, repo.UpsertTwoFactorSecret(ctx, domain.TwoFactorSecret{
		UserID:    u.ID,
		SecretKey: "JBSWY3DPEHPK3PXP",
	}))

	_, err = repo.FindActiveTwoFactorSecret(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "pending secret is not active")

	pending, err := repo.GetTwoFactorSecret(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", pending.SecretKey)
	require.False(t, pending.IsActive)

	require.NoError(t, repo.SetTwoFactorActive(ctx, u.ID, true))
	active, err := repo.FindActiveTwoFactorSecret(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, active.IsActive)

	// A new setup overwrites the single row and leaves it inactive.
	require.NoError(t, repo.UpsertTwoFactorSecret(ctx, domain.TwoFactorSecret{
		UserID:    u.ID,
		SecretKey: "GEZDGNBVGY3TQOJQ",
	}))
	_, err = repo.FindActiveTwoFactorSecret(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	replaced, err := repo.GetTwoFactorSecret(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "GEZDGNBVGY3TQOJQ", replaced.SecretKey)

	require.NoError(t, repo.DeleteTwoFactorSecret(ctx, u.ID))
	_, err = repo.GetTwoFactorSecret(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, repo.DeleteTwoFactorSecret(ctx, u.ID), "deleting twice is fine")
}

func testTransactions(t *testing.T, s store.Store) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	rolledBack := NewUser("grace")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().CreateUser(ctx, rolledBack))
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.Users().GetUserByID(ctx, rolledBack.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	committed := NewUser("heidi")
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, committed); err != nil {
			return err
		}
		return tx.Users().SetTwoFactorEnabled(ctx, committed.ID, true)
	}))
	got, err := s.Users().GetUserByID(ctx, committed.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled)

	t.Run("nested tx refused", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.WithTx(ctx, func(store.Tx) error { return nil })
		})
		require.Error(t, err)
	})
}
