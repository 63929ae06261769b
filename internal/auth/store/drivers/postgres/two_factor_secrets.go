package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
)

const twoFactorColumns = `user_id, secret_key, is_active, created_at, updated_at`

type twoFactorSecretsRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *twoFactorSecretsRepo) get(ctx context.Context, query string, userID string) (domain.TwoFactorSecret, error) {
	var s domain.TwoFactorSecret
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&s.UserID, &s.SecretKey, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.TwoFactorSecret{}, mapNotFound(err)
	}

	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r *twoFactorSecretsRepo) FindActiveTwoFactorSecret(ctx context.Context, userID string) (domain.TwoFactorSecret, error) {
	return r.get(ctx, `SELECT `+twoFactorColumns+`
		FROM two_factor_secrets WHERE user_id = $1 AND is_active`, userID)
}

func (r *twoFactorSecretsRepo) GetTwoFactorSecret(ctx context.Context, userID string) (domain.TwoFactorSecret, error) {
	return r.get(ctx, `SELECT `+twoFactorColumns+`
		FROM two_factor_secrets WHERE user_id = $1`, userID)
}

func (r *twoFactorSecretsRepo) UpsertTwoFactorSecret(ctx context.Context, s domain.TwoFactorSecret) error {
	now := ts(r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO two_factor_secrets (`+twoFactorColumns+`)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_key = EXCLUDED.secret_key,
			is_active  = EXCLUDED.is_active,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		s.UserID, s.SecretKey, s.IsActive, now,
	)
	return err
}

func (r *twoFactorSecretsRepo) SetTwoFactorActive(ctx context.Context, userID string, active bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE two_factor_secrets SET is_active = $1, updated_at = $2 WHERE user_id = $3`,
		active, ts(r.now()), userID))
}

func (r *twoFactorSecretsRepo) DeleteTwoFactorSecret(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM two_factor_secrets WHERE user_id = $1`, userID)
	return err
}
