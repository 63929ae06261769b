package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/pkg/authsdk"
	"github.com/aussiebroadwan/stocktake/pkg/httpx"
)

// AuthHandler serves the account endpoints under /v1/auth.
type AuthHandler struct {
	Auth *service.AuthService
	Now  func() time.Time
}

func (h *AuthHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, status int, res *domain.AuthResult) {
	expiresIn := max(int(res.ExpiresAt.Sub(h.now()).Seconds()), 0)

	u := res.User
	httpx.WriteJSON(w, status, authsdk.TokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		ExpiresAt:    res.ExpiresAt,
		User: authsdk.UserInfo{
			ID:               u.ID,
			Username:         u.Username,
			Email:            u.Email,
			Roles:            u.Roles,
			TwoFactorEnabled: u.TwoFactorEnabled,
		},
	})
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register an account
//	@Description	Creates a staff account and signs it in.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account details"
//	@Success		201		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request or weak_password"
//	@Failure		409		{object}	authsdk.APIError	"already_exists"
//	@Failure		429		{object}	authsdk.APIError	"rate_limit_exceeded"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Roles are never taken from the public endpoint.
	res, err := h.Auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, "register", err)
		return
	}
	h.writeTokens(w, http.StatusCreated, res)
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in
//	@Description	Exchanges email and password, plus a TOTP code when two factor is enabled, for an access and refresh token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request or invalid_code"
//	@Failure		401		{object}	authsdk.APIError	"invalid_credentials or two_factor_required"
//	@Failure		429		{object}	authsdk.APIError	"too_many_attempts"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		writeServiceError(w, r, "login", err)
		return
	}
	h.writeTokens(w, http.StatusOK, res)
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Rotate a refresh token
//	@Description	Consumes the refresh token and issues a new pair. The optional stale access token must belong to the same user.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.APIError	"invalid_refresh_token"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Auth.Refresh(r.Context(), req.RefreshToken, req.AccessToken)
	if err != nil {
		writeServiceError(w, r, "refresh", err)
		return
	}
	h.writeTokens(w, http.StatusOK, res)
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Revokes the refresh token. Succeeds for unknown or already revoked tokens.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LogoutRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	_ = h.Auth.Logout(r.Context(), req.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "logged out"})
}

// HandleForgotPassword handles POST /v1/auth/password/forgot
//
//	@Summary		Request a password reset
//	@Description	Sends a reset token when the email belongs to an active account. The response is the same either way.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ForgotPasswordRequest	true	"Email"
//	@Success		202		{object}	authsdk.MessageResponse
//	@Router			/v1/auth/password/forgot [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, "password reset request", err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{
		Message: "if the address belongs to an account, a reset link has been sent",
	})
}

// HandleResetPassword handles POST /v1/auth/password/reset
//
//	@Summary		Reset a password
//	@Description	Sets a new password with a single-use reset token and revokes every session of the user.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ResetPasswordRequest	true	"Token and new password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_reset_token or weak_password"
//	@Router			/v1/auth/password/reset [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, "password reset", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "password updated"})
}
