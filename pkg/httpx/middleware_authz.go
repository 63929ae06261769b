package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyRole the caller must hold at least one of the provided roles.
// Must run after AuthnMiddleware.
func RequireAnyRole(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, role := range rolesFromCtx(r.Context()) {
				if _, ok := want[role]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeForbidden(w, required...)
		})
	}
}

// RequireAllRoles the caller must hold every role listed.
func RequireAllRoles(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := make(map[string]struct{})
			for _, s := range rolesFromCtx(r.Context()) {
				have[s] = struct{}{}
			}

			for _, req := range required {
				if _, ok := have[req]; !ok {
					writeForbidden(w, required...)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, required ...string) {
	WriteError(w, http.StatusForbidden, "forbidden", "requires role: "+strings.Join(required, " "))
}
