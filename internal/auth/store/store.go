package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so a Tx cannot start another transaction.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	PasswordResetTokens() PasswordResetTokens
	TwoFactorSecrets() TwoFactorSecrets

	ApplyMigrations(ctx context.Context) error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login and password reset. Matching is
	// case-insensitive.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Duplicate username or email gives ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetTwoFactorEnabled flips the two_factor_enabled flag.
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error

	// SetActive soft (de)activates a user.
	SetActive(ctx context.Context, userID string, active bool) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// FindValidRefreshToken returns the token only if it is not revoked and
	// expires after now.
	FindValidRefreshToken(ctx context.Context, hash string, now time.Time) (domain.RefreshToken, error)

	// ConsumeRefreshToken revokes a valid token in a single conditional
	// update and returns it. ErrNotFound means the token was missing,
	// expired, or already revoked, possibly by a concurrent caller.
	ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked=true. Unknown or already revoked
	// tokens are a no-op.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// RevokeAllUserRefreshTokens revokes every token of a user.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping. Returns rows removed.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type PasswordResetTokens interface {
	// CreatePasswordResetToken stores a new reset token.
	CreatePasswordResetToken(ctx context.Context, t domain.PasswordResetToken) error

	// FindUsablePasswordResetToken returns the token only if it is unused
	// and expires after now.
	FindUsablePasswordResetToken(ctx context.Context, hash string, now time.Time) (domain.PasswordResetToken, error)

	// MarkPasswordResetTokenUsed sets used=true if it was false. ErrNotFound
	// when nothing changed, so only one caller can ever consume a token.
	MarkPasswordResetTokenUsed(ctx context.Context, hash string) error

	// DeleteExpiredPasswordResetTokens is housekeeping. Returns rows removed.
	DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type TwoFactorSecrets interface {
	// FindActiveTwoFactorSecret returns the user's secret only if active.
	FindActiveTwoFactorSecret(ctx context.Context, userID string) (domain.TwoFactorSecret, error)

	// GetTwoFactorSecret returns the user's secret whatever its state.
	GetTwoFactorSecret(ctx context.Context, userID string) (domain.TwoFactorSecret, error)

	// UpsertTwoFactorSecret inserts or replaces the user's single secret.
	UpsertTwoFactorSecret(ctx context.Context, s domain.TwoFactorSecret) error

	// SetTwoFactorActive flips is_active. ErrNotFound if the user has no
	// secret.
	SetTwoFactorActive(ctx context.Context, userID string, active bool) error

	// DeleteTwoFactorSecret removes the user's secret. Deleting a missing
	// secret is not an error.
	DeleteTwoFactorSecret(ctx context.Context, userID string) error
}
