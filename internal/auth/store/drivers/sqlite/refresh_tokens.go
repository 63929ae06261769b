package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked, created_at, updated_at`

type refreshTokensRepo struct {
	db  dbtx
	now func() time.Time
}

func scanRefreshToken(row interface{ Scan(...any) error }) (domain.RefreshToken, error) {
	var (
		t                               domain.RefreshToken
		expiresAt, createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &t.Revoked, &createdAt, &updatedAt); err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, unix(t.ExpiresAt), t.Revoked, unix(t.CreatedAt), unix(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) FindValidRefreshToken(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+` FROM refresh_tokens
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		hash, unix(now)))
}

func (r *refreshTokensRepo) ConsumeRefreshToken(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?
		RETURNING `+refreshTokenColumns,
		unix(now), hash, unix(now)))
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE token_hash = ? AND revoked = 0`,
		unix(r.now()), hash)
	return err
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE user_id = ? AND revoked = 0`,
		unix(r.now()), userID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
