package domain

import "time"

// RefreshToken models the stored refresh token record in the DB. The raw
// token only ever exists on the client; we keep its fingerprint.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid reports whether the token may still be exchanged at now.
func (t RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// PasswordResetToken is a single-use token handed out by the forgot-password
// flow.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256 of the opaque token
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Usable reports whether the token may still reset a password at now.
func (t PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// AuthResult is what a successful login, registration or refresh hands back.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
	User         UserProjection
}
