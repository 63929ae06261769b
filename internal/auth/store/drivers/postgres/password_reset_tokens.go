package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
)

type passwordResetTokensRepo struct {
	db dbtx
}

func (r *passwordResetTokensRepo) CreatePasswordResetToken(ctx context.Context, t domain.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, ts(t.ExpiresAt), t.Used, ts(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *passwordResetTokensRepo) FindUsablePasswordResetToken(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.PasswordResetToken, error) {
	var t domain.PasswordResetToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1 AND NOT used AND expires_at > $2`,
		hash, ts(now),
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}

	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *passwordResetTokensRepo) MarkPasswordResetTokenUsed(ctx context.Context, hash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = TRUE WHERE token_hash = $1 AND NOT used`, hash))
}

func (r *passwordResetTokensRepo) DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= $1 OR used`, ts(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
