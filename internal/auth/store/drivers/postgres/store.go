// Package postgres is the PostgreSQL driver for the auth store, built on
// database/sql with the pgx stdlib driver and goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/internal/auth/store/drivers/postgres/migrations"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing pool. Used by tests with sqlmock.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// gooseUp is swapped out in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// ApplyMigrations runs the embedded goose migrations.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, s.db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, now: s.now}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() store.Users { return &usersRepo{db: s.db, now: s.now} }
func (s *Store) RefreshTokens() store.RefreshTokens {
	return &refreshTokensRepo{db: s.db, now: s.now}
}
func (s *Store) PasswordResetTokens() store.PasswordResetTokens {
	return &passwordResetTokensRepo{db: s.db}
}
func (s *Store) TwoFactorSecrets() store.TwoFactorSecrets {
	return &twoFactorSecretsRepo{db: s.db, now: s.now}
}

type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }
func (t *txStore) Close() error    { return nil }

func (t *txStore) Ping(context.Context) error                         { return nil }
func (t *txStore) ApplyMigrations(context.Context) error              { return nil }
func (t *txStore) Tx(context.Context) (store.Tx, error)               { return nil, sql.ErrTxDone }
func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return sql.ErrTxDone }

func (t *txStore) Users() store.Users { return &usersRepo{db: t.tx, now: t.now} }
func (t *txStore) RefreshTokens() store.RefreshTokens {
	return &refreshTokensRepo{db: t.tx, now: t.now}
}
func (t *txStore) PasswordResetTokens() store.PasswordResetTokens {
	return &passwordResetTokensRepo{db: t.tx}
}
func (t *txStore) TwoFactorSecrets() store.TwoFactorSecrets {
	return &twoFactorSecretsRepo{db: t.tx, now: t.now}
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrAlreadyExists
	}
	return err
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func splitRoles(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func joinRoles(roles []string) string { return strings.Join(roles, " ") }

// ts normalizes a time to what TIMESTAMPTZ round-trips.
func ts(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }
