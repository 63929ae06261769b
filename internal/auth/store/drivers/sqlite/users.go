package sqlite

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
		u                    domain.User
		roles                string
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &roles,
		&u.IsActive, &u.TwoFactorEnabled, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Roles = splitRoles(roles)
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := r.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, joinRoles(u.Roles),
		u.IsActive, u.TwoFactorEnabled, unix(u.CreatedAt), unix(u.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, unix(r.now()), userID))
}

func (r *usersRepo) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, unix(r.now()), userID))
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, unix(r.now()), userID))
}
