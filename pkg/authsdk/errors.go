package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/stocktake/pkg/httpx"
)

// Error codes returned in the "error" field.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidCredentials      = "invalid_credentials"
	ErrorCodeTwoFactorRequired       = "two_factor_required"
	ErrorCodeInvalidCode             = "invalid_code"
	ErrorCodeInvalidRefreshToken     = "invalid_refresh_token"
	ErrorCodePrincipalNotFound       = "principal_not_found"
	ErrorCodeTwoFactorAlreadyEnabled = "two_factor_already_enabled"
	ErrorCodeTooManyAttempts         = "too_many_attempts"
	ErrorCodeInvalidResetToken       = "invalid_reset_token"
	ErrorCodeAlreadyExists           = "already_exists"
	ErrorCodeWeakPassword            = "weak_password"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeForbidden               = "forbidden"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
	ErrorCodeServerError             = "server_error"
)

// APIError is the error envelope of the auth API. The server writes it and
// the client parses it back.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes e as the response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	cp := *e
	cp.Description = desc
	return &cp
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required fields",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	ErrTwoFactorRequired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTwoFactorRequired,
		Description: "a two factor code is required",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCode,
		Description: "invalid code",
	}

	ErrInvalidRefreshToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidRefreshToken,
		Description: "the refresh token is invalid",
	}

	ErrPrincipalNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodePrincipalNotFound,
		Description: "user not found",
	}

	ErrTwoFactorAlreadyEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeTwoFactorAlreadyEnabled,
		Description: "two factor authentication is already enabled",
	}

	ErrTooManyAttempts = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed attempts, try again later",
	}

	ErrInvalidResetToken = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidResetToken,
		Description: "the reset token is invalid or expired",
	}

	ErrAlreadyExists = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyExists,
		Description: "a user with that username or email already exists",
	}

	ErrWeakPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "the password does not meet the requirements",
	}

	ErrForbidden = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeForbidden,
		Description: "insufficient role",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse turns a non-2xx response body into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		e.StatusCode = resp.StatusCode
		return &e
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
