package domain

import "time"

// TwoFactorSecret is the TOTP shared secret of a user. There is at most one
// per user. A fresh setup secret is stored inactive and only becomes active
// once the user proves possession with a valid code.
type TwoFactorSecret struct {
	UserID    string
	SecretKey string // unpadded base32
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorSetup is returned when a user starts TOTP enrollment.
type TwoFactorSetup struct {
	Secret          string // unpadded base32
	ProvisioningURI string // otpauth://totp/...
	ManualEntryKey  string // Secret grouped in fours
	QRCodePNG       []byte
}
