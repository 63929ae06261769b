package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/pkg/authsdk"
	"github.com/aussiebroadwan/stocktake/pkg/httpx"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

// serviceErrors maps service sentinels to their API envelope.
var serviceErrors = []struct {
	err error
	api *authsdk.APIError
}{
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrRequiresTwoFactor, authsdk.ErrTwoFactorRequired},
	{service.ErrInvalidCode, authsdk.ErrInvalidCode},
	{service.ErrInvalidRefreshToken, authsdk.ErrInvalidRefreshToken},
	{service.ErrPrincipalNotFound, authsdk.ErrPrincipalNotFound},
	{service.ErrTwoFactorAlreadyEnabled, authsdk.ErrTwoFactorAlreadyEnabled},
	{service.ErrTooManyAttempts, authsdk.ErrTooManyAttempts},
	{service.ErrInvalidResetToken, authsdk.ErrInvalidResetToken},
	{service.ErrAlreadyExists, authsdk.ErrAlreadyExists},
}

// apiError translates a service error. Validation errors keep their message
// because it only describes the caller's own input.
func apiError(err error) *authsdk.APIError {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.api
		}
	}
	switch {
	case errors.Is(err, service.ErrWeakPassword):
		return authsdk.ErrWeakPassword.WithDescription(err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return authsdk.ErrInvalidRequest.WithDescription(err.Error())
	}
	return nil
}

// writeServiceError writes the mapped error, or a 500 that is logged and
// reported to Sentry.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if e := apiError(err); e != nil {
		e.WriteError(w)
		return
	}

	slogx.FromContext(r.Context()).Error(op+" failed", "err", err)
	httpx.ReportError(r.Context(), err)
	authsdk.ErrServerError.WriteError(w)
}

// decodeBody decodes the JSON body or writes a 400.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("request body must be a valid JSON object").WriteError(w)
		return false
	}
	return true
}
