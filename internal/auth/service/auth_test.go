package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")

	t.Run("success issues a verifiable pair", func(t *testing.T) {
		res, err := f.auth.Login(ctx, LoginInput{Email: "  Alice@Example.com ", Password: testPassword})
		require.NoError(t, err)
		require.NotEmpty(t, res.RefreshToken)
		require.Equal(t, u.ID, res.User.ID)
		require.Equal(t, []string{domain.RoleStaff}, res.User.Roles)

		claims, err := f.signer.Verify(res.AccessToken)
		require.NoError(t, err)
		require.Equal(t, u.ID, claims.Subject)
		require.Equal(t, "alice", claims.Username)
		require.Equal(t, []string{domain.RoleStaff}, claims.Roles)
		require.WithinDuration(t, claims.ExpiresAt.Time, res.ExpiresAt, time.Second)

		_, err = f.store.RefreshTokens().FindValidRefreshToken(ctx, cryptox.FingerprintToken(res.RefreshToken), time.Now())
		require.NoError(t, err)
	})

	t.Run("failures are uniform", func(t *testing.T) {
		tests := []struct {
			name string
			in   LoginInput
		}{
			{"wrong password", LoginInput{Email: "alice@example.com", Password: "nope-nope"}},
			{"unknown email", LoginInput{Email: "ghost@example.com", Password: testPassword}},
			{"empty", LoginInput{}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.auth.Login(ctx, tc.in)
				require.ErrorIs(t, err, ErrInvalidCredentials)
			})
		}
	})

	t.Run("inactive user", func(t *testing.T) {
		bob := f.createUser(t, "bob")
		require.NoError(t, f.users.DeactivateUser(ctx, bob.ID))

		_, err := f.auth.Login(ctx, LoginInput{Email: bob.Email, Password: testPassword})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginTwoFactor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "carol")
	secret := f.enableTwoFactor(t, u.ID)

	_, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.ErrorIs(t, err, ErrRequiresTwoFactor)

	_, err = f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword, Code: "000000x"})
	require.ErrorIs(t, err, ErrInvalidCode)

	// A wrong password never reaches the code check.
	_, err = f.auth.Login(ctx, LoginInput{Email: u.Email, Password: "bad-password", Code: codeAt(secret, totpClock)})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword, Code: codeAt(secret, totpClock)})
	require.NoError(t, err)
	require.True(t, res.User.TwoFactorEnabled)
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "dave")

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.store.Users().UpdatePasswordHash(ctx, u.ID, string(legacy)))

	_, err = f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)

	got, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, cryptox.IsLegacyHash(got.PasswordHash))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.auth.Register(ctx, RegisterInput{Username: "erin", Email: "Erin@Example.com", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "erin@example.com", res.User.Email)
	require.Equal(t, []string{domain.RoleStaff}, res.User.Roles)
	require.NotEmpty(t, res.AccessToken)

	_, err = f.auth.Register(ctx, RegisterInput{Username: "erin2", Email: "erin@example.com", Password: testPassword})
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = f.auth.Register(ctx, RegisterInput{Username: "frank", Email: "frank@example.com", Password: "short"})
	require.ErrorIs(t, err, ErrWeakPassword)

	_, err = f.auth.Register(ctx, RegisterInput{Username: "frank", Email: "not-an-email", Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.auth.Register(ctx, RegisterInput{Username: "frank", Email: "frank@example.com", Password: testPassword, Roles: []string{"root"}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "gina")

	first, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)

	second, err := f.auth.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, u.ID, second.User.ID)

	_, err = f.auth.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.auth.Refresh(ctx, second.RefreshToken, "")
	require.NoError(t, err)
}

func TestRefreshConcurrentRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "hank")

	res, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)

	const racers = 2
	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		rejected atomic.Int32
		start    = make(chan struct{})
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.auth.Refresh(ctx, res.RefreshToken, "")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalidRefreshToken):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, racers-1, rejected.Load())
}

func TestRefreshWithStaleAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.createUser(t, "ivy")
	bob := f.createUser(t, "jack")

	aliceRes, err := f.auth.Login(ctx, LoginInput{Email: alice.Email, Password: testPassword})
	require.NoError(t, err)
	bobRes, err := f.auth.Login(ctx, LoginInput{Email: bob.Email, Password: testPassword})
	require.NoError(t, err)

	t.Run("expired token of the owner is accepted", func(t *testing.T) {
		stale, err := f.signer.Sign(jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
			Subject: alice.ID,
			Issuer:  "stocktake",
			TTL:     time.Minute,
			Now:     time.Now().Add(-time.Hour),
		}))
		require.NoError(t, err)

		next, err := f.auth.Refresh(ctx, aliceRes.RefreshToken, stale)
		require.NoError(t, err)
		aliceRes = next
	})

	t.Run("another user's token is rejected and leaves the refresh token alone", func(t *testing.T) {
		_, err := f.auth.Refresh(ctx, aliceRes.RefreshToken, bobRes.AccessToken)
		require.ErrorIs(t, err, ErrInvalidRefreshToken)

		_, err = f.auth.Refresh(ctx, aliceRes.RefreshToken, "")
		require.NoError(t, err)
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		_, err := f.auth.Refresh(ctx, bobRes.RefreshToken, bobRes.AccessToken+"x")
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	})
}

func TestRefreshFailuresAreUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "kate")

	res, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, f.auth.Logout(ctx, res.RefreshToken))

	for _, token := range []string{"", "never-issued", res.RefreshToken} {
		_, err := f.auth.Refresh(ctx, token, "")
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	}

	// Expired tokens fail the same way.
	f.auth.Sessions.Now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)
	f.auth.Sessions.Now = time.Now

	_, err = f.auth.Refresh(ctx, old.RefreshToken, "")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshAfterDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "liam")

	res, err := f.auth.Login(ctx, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, f.users.DeactivateUser(ctx, u.ID))

	_, err = f.auth.Refresh(ctx, res.RefreshToken, "")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.ErrorIs(t, f.users.DeactivateUser(ctx, "missing"), ErrPrincipalNotFound)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.auth.Logout(ctx, ""))
	require.NoError(t, f.auth.Logout(ctx, "unknown"))
	require.NoError(t, f.auth.Logout(ctx, "unknown"))
}
