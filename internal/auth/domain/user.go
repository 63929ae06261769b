package domain

import "time"

// Role names understood by the HTTP layer.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

type User struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string   // argon2id PHC string, or a legacy bcrypt hash
	Roles            []string // stored space-delimited, order preserved
	IsActive         bool     // false once soft-deactivated; rows are never deleted
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserProjection is the safe view of a user returned to clients. It never
// carries the password hash.
type UserProjection struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Roles            []string `json:"roles"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
}

func (u User) Projection() UserProjection {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserProjection{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Roles:            roles,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}
