package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/httpx"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"

	_ "github.com/aussiebroadwan/stocktake/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	signer       jwtx.Signer
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	AuthService *service.AuthService
	UserService *service.UserService
}

func NewRouter(
	signer jwtx.Signer,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		signer:       signer,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Recoverer sits inside the logger so a panic still produces an access log line.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recoverer(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerTwoFactor()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Stocktake Authentication Service API
//	@version		0.1.0
//	@description	Account authentication for stocktake: password login with optional TOTP two factor, rotating refresh tokens and password reset.
//	@description
//	@description				Access tokens are HS256 JWTs sent as "Authorization: Bearer {token}".
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/stocktake
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.AuthService}

	// Credential endpoints - strict rate limit by IP (brute force prevention)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister), httpx.RateLimitByIP(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin), httpx.RateLimitByIP(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/auth/password/forgot",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword), httpx.RateLimitByIP(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/auth/password/reset",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword), httpx.RateLimitByIP(httpx.StrictLimit)))

	// Token lifecycle - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh), httpx.RateLimitByIP(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout), httpx.RateLimitByIP(httpx.ModerateLimit)))
}

func (r *Router) registerUsers() {
	h := &UserHandler{Users: r.UserService}

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("POST /v1/users/{id}/deactivate",
		httpx.Chain(http.HandlerFunc(h.HandleDeactivate),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyRole(domain.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{Auth: r.AuthService}

	secured := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(limit),
		)
	}

	// Code checks get the strict limit on top of the per-user attempt limiter.
	r.Mux.Handle("POST /v1/2fa/setup", secured(h.HandleSetup, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/2fa/enable", secured(h.HandleEnable, httpx.StrictLimit))
	r.Mux.Handle("POST /v1/2fa/disable", secured(h.HandleDisable, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/2fa/verify", secured(h.HandleVerify, httpx.StrictLimit))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
