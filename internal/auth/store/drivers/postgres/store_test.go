package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/internal/auth/store/drivers/postgres/migrations"
)

var fixedNow = time.Unix(1_700_000_000, 0).UTC()

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	s := New(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

var refreshCols = []string{"id", "user_id", "token_hash", "expires_at", "revoked", "created_at", "updated_at"}

func TestConsumeRefreshToken(t *testing.T) {
	t.Run("winner gets the row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE refresh_tokens SET revoked = TRUE, updated_at = \$1 WHERE token_hash = \$2 AND NOT revoked AND expires_at > \$1 RETURNING`).
			WithArgs(sqlmock.AnyArg(), "hash-1").
			WillReturnRows(sqlmock.NewRows(refreshCols).
				AddRow("rt-1", "u-1", "hash-1", fixedNow.Add(time.Hour), true, fixedNow, fixedNow))

		got, err := s.RefreshTokens().ConsumeRefreshToken(context.Background(), "hash-1", fixedNow)
		require.NoError(t, err)
		require.Equal(t, "u-1", got.UserID)
		require.True(t, got.Revoked)
		require.Equal(t, fixedNow.Add(time.Hour), got.ExpiresAt)
	})

	t.Run("no row is not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE refresh_tokens SET revoked = TRUE`).
			WithArgs(sqlmock.AnyArg(), "gone").
			WillReturnRows(sqlmock.NewRows(refreshCols))

		_, err := s.RefreshTokens().ConsumeRefreshToken(context.Background(), "gone", fixedNow)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCreateUserUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_key"})

	err := s.Users().CreateUser(context.Background(), domain.User{
		ID:       "u-1",
		Username: "alice",
		Email:    "alice@example.com",
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestCreateUserOtherErrorPassesThrough(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(boom)

	err := s.Users().CreateUser(context.Background(), domain.User{ID: "u-1"})
	require.ErrorIs(t, err, boom)
}

func TestGetUserByEmailIsCaseInsensitive(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("Alice@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "roles",
			"is_active", "two_factor_enabled", "created_at", "updated_at",
		}).AddRow("u-1", "alice", "alice@example.com", "hash", "staff admin", true, false, fixedNow, fixedNow))

	u, err := s.Users().GetUserByEmail(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)
	require.Equal(t, []string{"staff", "admin"}, u.Roles)
}

func TestUpdatesReportMissingRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users SET is_active = \$1`).
		WithArgs(false, sqlmock.AnyArg(), "nobody").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE password_reset_tokens SET used = TRUE`).
		WithArgs("hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, s.Users().SetActive(context.Background(), "nobody", false), store.ErrNotFound)
	require.ErrorIs(t, s.PasswordResetTokens().MarkPasswordResetTokenUsed(context.Background(), "hash"), store.ErrNotFound)
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.RefreshTokens().DeleteExpiredRefreshTokens(context.Background(), fixedNow)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestDeleteTwoFactorSecretIgnoresMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM two_factor_secrets WHERE user_id = \$1`).
		WithArgs("nobody").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.TwoFactorSecrets().DeleteTwoFactorSecret(context.Background(), "nobody"))
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE`).
			WithArgs(sqlmock.AnyArg(), "u-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := s.WithTx(context.Background(), func(tx store.Tx) error {
			return tx.RefreshTokens().RevokeAllUserRefreshTokens(context.Background(), "u-1")
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := s.WithTx(context.Background(), func(store.Tx) error { return boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("nested transactions are refused", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := s.WithTx(context.Background(), func(tx store.Tx) error {
			_, err := tx.Tx(context.Background())
			return err
		})
		require.ErrorIs(t, err, sql.ErrTxDone)
	})
}

func TestApplyMigrationsRunsEmbeddedSet(t *testing.T) {
	s, _ := newMockStore(t)

	var dir string
	orig := gooseUp
	gooseUp = func(_ context.Context, _ *sql.DB, d string) error {
		dir = d
		return nil
	}
	t.Cleanup(func() { gooseUp = orig })

	require.NoError(t, s.ApplyMigrations(context.Background()))
	require.Equal(t, ".", dir)
}

func TestMigrationsHaveGooseAnnotations(t *testing.T) {
	body, err := fs.ReadFile(migrations.Migrations, "00001_init.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "-- +goose Up")
	require.Contains(t, string(body), "-- +goose Down")
}
