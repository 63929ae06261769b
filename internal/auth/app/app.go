package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/aussiebroadwan/stocktake/internal/auth/http"
	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/stocktake/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
	"github.com/aussiebroadwan/stocktake/pkg/limiter"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
	"github.com/aussiebroadwan/stocktake/pkg/totp"
)

// BuildVersion is overridden at build time with -ldflags "-X ...BuildVersion=".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	signer *jwtx.HS256
	redis  *redis.Client // nil when REDIS_ADDR is unset

	// Services
	authService         *service.AuthService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initSentry(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	db, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.logger.Info("database migrations applied successfully", "driver", cfg.Database.Driver)

	signer, err := jwtx.NewHS256([]byte(cfg.Auth.SigningSecret), cfg.Auth.Issuer, cfg.Auth.Audience...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize signer: %w", err)
	}
	app.signer = signer

	attempts := app.initLimiter(ctx)
	app.initServices(attempts)
	app.initHTTP()

	return app, nil
}

// OpenStore opens the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg Database) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = postgres.Open(ctx, cfg.DSN)
	default:
		db, err = sqlite.NewStore(cfg.File)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	sentry.Flush(2 * time.Second)

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Handler exposes the router, mostly for tests.
func (app *Application) Handler() http.Handler {
	return app.router
}

func (app *Application) initSentry() error {
	if app.cfg.SentryDSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              app.cfg.SentryDSN,
		Environment:      app.cfg.Env,
		Release:          BuildVersion,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	app.logger.Info("sentry error reporting enabled")
	return nil
}

// initLimiter connects to Redis when configured. Without it second-factor
// attempts are only bounded by the HTTP rate limits.
func (app *Application) initLimiter(ctx context.Context) service.AttemptLimiter {
	if app.cfg.RedisAddr == "" {
		app.logger.Warn("REDIS_ADDR not set, TOTP attempt limiter disabled")
		return service.NoopLimiter{}
	}

	app.redis = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := app.redis.Ping(pingCtx).Err(); err != nil {
		// The limiter fails open per request, so an unreachable Redis at
		// boot is not fatal.
		app.logger.Warn("redis not reachable at startup", "addr", app.cfg.RedisAddr, "error", err)
	}

	return limiter.NewTOTPLimiter(app.redis, limiter.TOTPConfig{
		MaxAttempts: app.cfg.TOTP.MaxAttempts,
		Cooldown:    app.cfg.TOTP.Cooldown,
	})
}

// initServices initializes all business logic services
func (app *Application) initServices(attempts service.AttemptLimiter) {
	hasher := cryptox.Hasher{Pepper: app.cfg.Auth.PasswordPepper}

	app.userService = &service.UserService{Store: app.db, Hasher: hasher}
	app.authService = &service.AuthService{
		Store:    app.db,
		Sessions: service.NewSessionIssuer(app.signer, app.cfg.AccessTTL(), app.cfg.Auth.RefreshTTL),
		TOTP:     totp.New(),
		Hasher:   hasher,
		Limiter:  attempts,
		Notifier: service.LogResetNotifier{Logger: app.logger},
		Issuer:   app.cfg.Auth.TOTPIssuer,
		ResetTTL: app.cfg.Auth.ResetTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		app.signer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.AuthService = app.authService
	router.UserService = app.userService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
