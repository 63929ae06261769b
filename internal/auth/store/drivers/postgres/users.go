package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
)

const userColumns = `id, username, email, password_hash, roles, is_active, two_factor_enabled, created_at, updated_at`

type usersRepo struct {
	db  dbtx
	now func() time.Time
}

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u     domain.User
		roles string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &roles,
		&u.IsActive, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Roles = splitRoles(roles)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Username, u.Email, u.PasswordHash, joinRoles(u.Roles),
		u.IsActive, u.TwoFactorEnabled, ts(u.CreatedAt), ts(u.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		newHash, ts(r.now()), userID))
}

func (r *usersRepo) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, ts(r.now()), userID))
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, ts(r.now()), userID))
}
