package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
)

type twoFactorSecretsRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *twoFactorSecretsRepo) get(ctx context.Context, query string, userID string) (domain.TwoFactorSecret, error) {
	var (
		s                    domain.TwoFactorSecret
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&s.UserID, &s.SecretKey, &s.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return domain.TwoFactorSecret{}, mapNotFound(err)
	}

	s.CreatedAt = fromUnix(createdAt)
	s.UpdatedAt = fromUnix(updatedAt)
	return s, nil
}

func (r *twoFactorSecretsRepo) FindActiveTwoFactorSecret(ctx context.Context, userID string) (domain.TwoFactorSecret, error) {
	return r.get(ctx, `
		SELECT user_id, secret_key, is_active, created_at, updated_at
		FROM two_factor_secrets WHERE user_id = ? AND is_active = 1`, userID)
}

func (r *twoFactorSecretsRepo) GetTwoFactorSecret(ctx context.Context, userID string) (domain.TwoFactorSecret, error) {
	return r.get(ctx, `
		SELECT user_id, secret_key, is_active, created_at, updated_at
		FROM two_factor_secrets WHERE user_id = ?`, userID)
}

func (r *twoFactorSecretsRepo) UpsertTwoFactorSecret(ctx context.Context, s domain.TwoFactorSecret) error {
	now := unix(r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO two_factor_secrets (user_id, secret_key, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_key = excluded.secret_key,
			is_active  = excluded.is_active,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		s.UserID, s.SecretKey, s.IsActive, now, now,
	)
	return err
}

func (r *twoFactorSecretsRepo) SetTwoFactorActive(ctx context.Context, userID string, active bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE two_factor_secrets SET is_active = ?, updated_at = ? WHERE user_id = ?`,
		active, unix(r.now()), userID))
}

func (r *twoFactorSecretsRepo) DeleteTwoFactorSecret(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM two_factor_secrets WHERE user_id = ?`, userID)
	return err
}
