package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Auth     Auth     `envPrefix:"AUTH_"`
	Database Database `envPrefix:"AUTH_DATABASE_"`
	TOTP     TOTP     `envPrefix:"TOTP_"`

	RedisAddr string `env:"REDIS_ADDR"` // Optional: enables the TOTP attempt limiter
	SentryDSN string `env:"SENTRY_DSN"` // Optional: enables error reporting

	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// Auth holds token and credential settings.
type Auth struct {
	SigningSecret    string        `env:"SIGNING_SECRET"` // Required: HS256 key, at least 32 bytes
	Issuer           string        `env:"ISSUER" envDefault:"stocktake-auth"`
	Audience         []string      `env:"AUDIENCE" envDefault:"stocktake-api" envSeparator:","`
	AccessTTLMinutes int           `env:"ACCESS_TTL_MINUTES" envDefault:"15"`
	RefreshTTL       time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	ResetTTL         time.Duration `env:"RESET_TTL" envDefault:"1h"`
	TOTPIssuer       string        `env:"TOTP_ISSUER" envDefault:"Stocktake"`
	PasswordPepper   string        `env:"PASSWORD_PEPPER"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	File   string `env:"FILE" envDefault:"auth.db"` // sqlite only
	DSN    string `env:"DSN"`                       // postgres only
}

// TOTP tunes the second-factor attempt limiter.
type TOTP struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Cooldown    time.Duration `env:"COOLDOWN" envDefault:"15m"`
}

// AccessTTL is the access token lifetime.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.Auth.AccessTTLMinutes) * time.Minute
}

// LoadConfig reads the process environment.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(nil)
}

// LoadConfigFrom parses environ instead of the process environment when it
// is non-nil.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.Auth.SigningSecret) < jwtx.MinSecretSize {
		errs = append(errs, fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d bytes", jwtx.MinSecretSize))
	}
	if c.Auth.AccessTTLMinutes < 1 {
		errs = append(errs, errors.New("AUTH_ACCESS_TTL_MINUTES must be at least 1"))
	}
	if c.Auth.RefreshTTL <= c.AccessTTL() {
		errs = append(errs, errors.New("AUTH_REFRESH_TTL must be longer than the access token lifetime"))
	}
	if c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("AUTH_RESET_TTL must be positive"))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	return errors.Join(errs...)
}

// Validate checks the driver and its connection setting.
func (d Database) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.File == "" {
			return errors.New("AUTH_DATABASE_FILE is required for sqlite")
		}
	case DriverPostgres:
		if d.DSN == "" {
			return errors.New("AUTH_DATABASE_DSN is required for postgres")
		}
	default:
		return fmt.Errorf("AUTH_DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, d.Driver)
	}
	return nil
}

// AdminConfig is the subset authctl needs. It never requires the signing
// secret.
type AdminConfig struct {
	Database       Database `envPrefix:"AUTH_DATABASE_"`
	PasswordPepper string   `env:"AUTH_PASSWORD_PEPPER"`
}

// LoadAdminConfig parses environ, or the process environment when nil.
func LoadAdminConfig(environ map[string]string) (AdminConfig, error) {
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}

	var cfg AdminConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return AdminConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := cfg.Database.Validate(); err != nil {
		return AdminConfig{}, err
	}
	return cfg, nil
}
