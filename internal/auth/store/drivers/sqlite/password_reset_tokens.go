package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, unix(t.ExpiresAt), t.Used, unix(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *passwordResetTokensRepo) FindUsablePasswordResetToken(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.PasswordResetToken, error) {
	var (
		t                    domain.PasswordResetToken
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token_hash = ? AND used = 0 AND expires_at > ?`,
		hash, unix(now),
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &t.Used, &createdAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}

	t.ExpiresAt = fromUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

func (r *passwordResetTokensRepo) MarkPasswordResetTokenUsed(ctx context.Context, hash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = 1 WHERE token_hash = ? AND used = 0`, hash))
}

func (r *passwordResetTokensRepo) DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= ? OR used = 1`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
