package service

import (
	"errors"

	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
)

// Error values double as the machine readable codes the HTTP layer returns.
var (
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrRequiresTwoFactor   = errors.New("two_factor_required")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidRefreshToken = errors.New("invalid_refresh_token")
	ErrPrincipalNotFound   = errors.New("principal_not_found")

	ErrTwoFactorAlreadyEnabled = errors.New("two_factor_already_enabled")
	ErrTooManyAttempts         = errors.New("too_many_attempts")
	ErrInvalidResetToken       = errors.New("invalid_reset_token")
	ErrAlreadyExists           = errors.New("already_exists")
	ErrWeakPassword            = errors.New("weak_password")
	ErrInvalidInput            = errors.New("invalid_request")
)

// ErrDecode is returned when a stored secret cannot be decoded.
var ErrDecode = cryptox.ErrDecode
