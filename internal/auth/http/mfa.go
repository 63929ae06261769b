package http

import (
	"net/http"

	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/pkg/authsdk"
	"github.com/aussiebroadwan/stocktake/pkg/httpx"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

// TwoFactorHandler serves the /v1/2fa endpoints. Every route is behind
// AuthnMiddleware, so the user id is always on the context.
type TwoFactorHandler struct {
	Auth *service.AuthService
}

// HandleSetup handles POST /v1/2fa/setup
//
//	@Summary		Begin two factor setup
//	@Description	Generates a new pending TOTP secret and returns it with its provisioning URI and QR code. The secret is not used until confirmed.
//	@Tags			Two Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorSetupResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid_token"
//	@Failure		404	{object}	authsdk.APIError	"principal_not_found"
//	@Failure		409	{object}	authsdk.APIError	"two_factor_already_enabled"
//	@Router			/v1/2fa/setup [post].
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)

	setup, err := h.Auth.BeginTwoFactorSetup(ctx, userID)
	if err != nil {
		writeServiceError(w, r, "two factor setup", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ManualEntryKey:  setup.ManualEntryKey,
		ProvisioningURI: setup.ProvisioningURI,
		QRCodePNG:       setup.QRCodePNG,
	})
}

// HandleEnable handles POST /v1/2fa/enable
//
//	@Summary		Confirm two factor setup
//	@Description	Activates the pending secret when the code matches it.
//	@Tags			Two Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TwoFactorCodeRequest	true	"6 digit code"
//	@Success		200		{object}	authsdk.TwoFactorStatusResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_code"
//	@Failure		409		{object}	authsdk.APIError	"two_factor_already_enabled"
//	@Failure		429		{object}	authsdk.APIError	"too_many_attempts"
//	@Router			/v1/2fa/enable [post].
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TwoFactorCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	ok, err := h.Auth.ConfirmTwoFactorSetup(ctx, httpx.UserIDFromContext(ctx), req.Code)
	if err != nil {
		writeServiceError(w, r, "two factor enable", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorStatusResponse{Enabled: ok})
}

// HandleDisable handles POST /v1/2fa/disable
//
//	@Summary		Disable two factor
//	@Tags			Two Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorStatusResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid_token"
//	@Failure		404	{object}	authsdk.APIError	"principal_not_found"
//	@Router			/v1/2fa/disable [post].
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.Auth.DisableTwoFactor(ctx, httpx.UserIDFromContext(ctx)); err != nil {
		writeServiceError(w, r, "two factor disable", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorStatusResponse{Enabled: false})
}

// HandleVerify handles POST /v1/2fa/verify
//
//	@Summary		Verify a code
//	@Description	Step-up check of a code against the active secret. Users without two factor always get valid=false.
//	@Tags			Two Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TwoFactorCodeRequest	true	"6 digit code"
//	@Success		200		{object}	authsdk.TwoFactorVerifyResponse
//	@Failure		429		{object}	authsdk.APIError	"too_many_attempts"
//	@Router			/v1/2fa/verify [post].
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TwoFactorCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	valid, err := h.Auth.VerifyTwoFactorCode(ctx, userID, req.Code)
	if err != nil {
		writeServiceError(w, r, "two factor verify", err)
		return
	}
	if !valid {
		slogx.FromContext(ctx).Info("two factor code rejected", "user_id", userID)
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorVerifyResponse{Valid: valid})
}
