package service

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
	"github.com/aussiebroadwan/stocktake/pkg/totp"
)

// totpClock is the fixed instant the test TOTP engine reads.
var totpClock = time.Unix(1_700_000_000, 0).UTC()

const testPassword = "correct horse battery"

type fixture struct {
	store    store.Store
	auth     *AuthService
	users    *UserService
	signer   *jwtx.HS256
	notifier *captureNotifier
}

type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string // email -> raw token
}

func (n *captureNotifier) NotifyPasswordReset(_ context.Context, u domain.User, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[u.Email] = token
	return nil
}

func (n *captureNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	signer, err := jwtx.NewHS256(bytes.Repeat([]byte("k"), jwtx.MinSecretSize), "stocktake", "stocktake-api")
	require.NoError(t, err)

	notifier := &captureNotifier{tokens: map[string]string{}}
	auth := &AuthService{
		Store:    st,
		Sessions: NewSessionIssuer(signer, 15*time.Minute, 24*time.Hour),
		TOTP:     &totp.Engine{Now: func() time.Time { return totpClock }},
		Limiter:  NoopLimiter{},
		Notifier: notifier,
		Issuer:   "Stocktake",
		ResetTTL: time.Hour,
	}

	return &fixture{
		store:    st,
		auth:     auth,
		users:    &UserService{Store: st},
		signer:   signer,
		notifier: notifier,
	}
}

func (f *fixture) createUser(t *testing.T, username string) domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	return u
}

// enableTwoFactor runs the setup/confirm flow and returns the raw secret.
func (f *fixture) enableTwoFactor(t *testing.T, userID string) []byte {
	t.Helper()
	ctx := context.Background()

	setup, err := f.auth.BeginTwoFactorSetup(ctx, userID)
	require.NoError(t, err)
	secret, err := cryptox.DecodeSecret(setup.Secret)
	require.NoError(t, err)

	ok, err := f.auth.ConfirmTwoFactorSetup(ctx, userID, codeAt(secret, totpClock))
	require.NoError(t, err)
	require.True(t, ok)
	return secret
}

func codeAt(secret []byte, t time.Time) string {
	return totp.ComputeCode(secret, totp.CurrentTimeStep(t))
}
