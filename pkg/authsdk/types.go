package authsdk

import "time"

// ============================================================================
// Account Types
// ============================================================================

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /v1/auth/login. Code is required only
// for users with two factor authentication enabled.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// RefreshRequest is the body of POST /v1/auth/refresh. AccessToken is the
// optional stale access token; when present its subject must match the
// refresh token's owner.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token,omitempty"`
}

// LogoutRequest is the body of POST /v1/auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest is the body of POST /v1/auth/password/forgot.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /v1/auth/password/reset.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is returned by register, login and refresh.
type TokenResponse struct {
	// AccessToken is the HS256 JWT used as the bearer token
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque, single-use refresh token
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int `json:"expires_in"`

	// ExpiresAt is the access token expiry
	ExpiresAt time.Time `json:"expires_at"`

	User UserInfo `json:"user"`
}

// UserInfo is the public view of a user.
type UserInfo struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Roles            []string `json:"roles"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
}

// MessageResponse carries a human readable status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Two Factor Types
// ============================================================================

// TwoFactorSetupResponse is returned by POST /v1/2fa/setup. The secret stays
// pending until it is confirmed with a code.
type TwoFactorSetupResponse struct {
	Secret          string `json:"secret"`
	ManualEntryKey  string `json:"manual_entry_key"`
	ProvisioningURI string `json:"provisioning_uri"`

	// QRCodePNG is the provisioning URI rendered as a PNG (base64 in JSON)
	QRCodePNG []byte `json:"qr_code_png,omitempty"`
}

// TwoFactorCodeRequest carries a 6 digit code.
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorStatusResponse is returned by enable and disable.
type TwoFactorStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// TwoFactorVerifyResponse is returned by verify.
type TwoFactorVerifyResponse struct {
	Valid bool `json:"valid"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	// Status is "ok" or "unavailable"
	Status string `json:"status"`

	// Uptime is the service uptime, e.g. "1h23m45s"
	Uptime string `json:"uptime,omitempty"`

	Version string `json:"version,omitempty"`

	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each critical dependency.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
