package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/stocktake/pkg/httpx"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func newVerifier(t *testing.T) *jwtx.HS256 {
	t.Helper()
	v, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "stocktake-auth", "stocktake")
	require.NoError(t, err)
	return v
}

func signFor(t *testing.T, v *jwtx.HS256, roles ...string) string {
	t.Helper()
	tok, err := v.Sign(jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:  "user-1",
		Username: "alice",
		Roles:    roles,
		Issuer:   "stocktake-auth",
		Audience: []string{"stocktake"},
		TTL:      5 * time.Minute,
		Now:      time.Now(),
	}))
	require.NoError(t, err)
	return tok
}

func TestAuthnMiddleware(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	h := httpx.AuthnMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		require.True(t, ok)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"user_id":  httpx.UserIDFromContext(r.Context()),
			"username": claims.Username,
		})
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+signFor(t, v, "staff"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "user-1", body["user_id"])
		require.Equal(t, "alice", body["username"])
	})

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"empty bearer":   "Bearer ",
		"garbage token":  "Bearer not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer "))
			require.Contains(t, rec.Body.String(), "invalid_token")
		})
	}
}

func TestRequireAnyRole(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	h := httpx.Chain(okHandler(), httpx.AuthnMiddleware(v), httpx.RequireAnyRole("admin"))

	t.Run("allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signFor(t, v, "staff", "admin"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signFor(t, v, "staff"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "forbidden")
	})
}

func TestRequireAllRoles(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	h := httpx.Chain(okHandler(), httpx.AuthnMiddleware(v), httpx.RequireAllRoles("staff", "admin"))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signFor(t, v, "admin"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signFor(t, v, "admin", "staff"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	h := httpx.Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "server_error")
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		Email string `json:"email"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"email":"a@example.com"}`, false},
		{"unknown field", `{"email":"a@example.com","admin":true}`, true},
		{"trailing data", `{"email":"a@example.com"}{}`, true},
		{"not json", `email=a`, true},
		{"empty", ``, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.payload))
			var got body
			err := httpx.DecodeJSON(httptest.NewRecorder(), req, &got)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "a@example.com", got.Email)
		})
	}
}
