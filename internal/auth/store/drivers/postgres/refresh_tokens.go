package postgres

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
	var t domain.RefreshToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.TokenHash, ts(t.ExpiresAt), t.Revoked, ts(t.CreatedAt), ts(t.CreatedAt),
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
		WHERE token_hash = $1 AND NOT revoked AND expires_at > $2`,
		hash, ts(now)))
}

// ConsumeRefreshToken relies on the row lock taken by UPDATE: a concurrent
// caller re-evaluates the WHERE clause after the winner commits and matches
// nothing.
func (r *refreshTokensRepo) ConsumeRefreshToken(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = $1
		WHERE token_hash = $2 AND NOT revoked AND expires_at > $1
		RETURNING `+refreshTokenColumns,
		ts(now), hash))
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, updated_at = $1 WHERE token_hash = $2 AND NOT revoked`,
		ts(r.now()), hash)
	return err
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, updated_at = $1 WHERE user_id = $2 AND NOT revoked`,
		ts(r.now()), userID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`, ts(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
