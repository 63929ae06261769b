package http

import (
	"net/http"

	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/pkg/authsdk"
	"github.com/aussiebroadwan/stocktake/pkg/httpx"
)

// UserHandler serves the signed in user's profile and admin user actions.
type UserHandler struct {
	Users *service.UserService
}

// HandleMe handles GET /v1/auth/me
//
//	@Summary		Current user
//	@Description	Returns the user the access token was issued to.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfo
//	@Failure		401	{object}	authsdk.APIError	"invalid_token"
//	@Failure		404	{object}	authsdk.APIError	"principal_not_found"
//	@Router			/v1/auth/me [get].
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.Users.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "load user", err)
		return
	}
	if !u.IsActive {
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "user is deactivated")
		return
	}

	p := u.Projection()
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfo{
		ID:               p.ID,
		Username:         p.Username,
		Email:            p.Email,
		Roles:            p.Roles,
		TwoFactorEnabled: p.TwoFactorEnabled,
	})
}

// HandleDeactivate handles POST /v1/users/{id}/deactivate
//
//	@Summary		Deactivate a user
//	@Description	Soft-deactivates the user and revokes all of their refresh tokens. Requires the admin role.
//	@Tags			Users
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		401	{object}	authsdk.APIError	"invalid_token"
//	@Failure		403	{object}	authsdk.APIError	"forbidden"
//	@Failure		404	{object}	authsdk.APIError	"principal_not_found"
//	@Router			/v1/users/{id}/deactivate [post].
func (h *UserHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("id")
	if target == "" {
		authsdk.ErrInvalidRequest.WithDescription("user id is required").WriteError(w)
		return
	}

	if err := h.Users.DeactivateUser(r.Context(), target); err != nil {
		writeServiceError(w, r, "deactivate user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
