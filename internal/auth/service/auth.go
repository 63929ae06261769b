package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
	"github.com/aussiebroadwan/stocktake/pkg/totp"
)

// DefaultResetTTL is how long a password reset token stays usable.
const DefaultResetTTL = time.Hour

// AuthService composes the store, session issuer and TOTP engine into the
// login, refresh, logout, two factor and password reset flows.
type AuthService struct {
	Store    store.Store
	Sessions *SessionIssuer
	TOTP     *totp.Engine
	Hasher   cryptox.Hasher
	Limiter  AttemptLimiter
	Notifier ResetNotifier

	// Issuer labels TOTP entries in authenticator apps.
	Issuer   string
	ResetTTL time.Duration
	Now      func() time.Time
}

type LoginInput struct {
	Email    string
	Password string
	Code     string // optional TOTP code
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *AuthService) users() *UserService {
	return &UserService{Store: s.Store, Hasher: s.Hasher, Now: s.Now}
}

// dummyHash is verified against when the email is unknown so the response
// time does not reveal whether an account exists.
var dummyHash = sync.OnceValue(func() string {
	h, err := cryptox.Hasher{}.Hash("stocktake-dummy-password")
	if err != nil {
		return ""
	}
	return h
})

// Login checks credentials and, for users with two factor enabled, the TOTP
// code. On success it issues and persists a fresh token pair.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*domain.AuthResult, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load user: %w", err)
		}
		_ = s.Hasher.Verify(in.Password, dummyHash())
		return nil, ErrInvalidCredentials
	}

	if err := s.Hasher.Verify(in.Password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("password verification failed", "error", err, "user_id", u.ID)
		}
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		l.Info("login attempt for inactive user", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		code := strings.TrimSpace(in.Code)
		if code == "" {
			return nil, ErrRequiresTwoFactor
		}
		ok, err := s.verifyActiveCode(ctx, u.ID, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidCode
		}
	}

	if cryptox.IsLegacyHash(u.PasswordHash) {
		s.upgradeHash(ctx, u.ID, in.Password)
	}

	return s.issue(ctx, u)
}

// upgradeHash replaces a legacy bcrypt hash with argon2id. Failure only
// costs us another attempt at the next login.
func (s *AuthService) upgradeHash(ctx context.Context, userID, password string) {
	l := slogx.FromContext(ctx)

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Warn("failed to rehash legacy password", "error", err, "user_id", userID)
		return
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		l.Warn("failed to store upgraded password hash", "error", err, "user_id", userID)
		return
	}
	l.Info("upgraded legacy password hash", "user_id", userID)
}

// Register creates a user with the default role and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.AuthResult, error) {
	u, err := s.users().CreateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Refresh rotates a refresh token. The presented token is revoked by a
// single conditional update before anything new is issued, so a token can
// never be exchanged twice. Every failure is ErrInvalidRefreshToken.
//
// staleAccessToken is optional. When given, its signature must be valid
// (expiry is ignored) and its subject must own the refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, staleAccessToken string) (*domain.AuthResult, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return nil, ErrInvalidRefreshToken
	}
	hash := cryptox.FingerprintToken(raw)

	current, err := s.Store.RefreshTokens().FindValidRefreshToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	if stale := strings.TrimSpace(staleAccessToken); stale != "" {
		claims, err := s.Sessions.ParseClaimsIgnoringExpiry(stale)
		if err != nil {
			l.Info("refresh with unverifiable access token", "error", err)
			return nil, ErrInvalidRefreshToken
		}
		if claims.Subject != current.UserID {
			l.Warn("refresh token presented with another user's access token",
				"user_id", current.UserID, "subject", claims.Subject)
			return nil, ErrInvalidRefreshToken
		}
	}

	// Autocommitted so the revocation sticks even if issuing below fails.
	if _, err := s.Store.RefreshTokens().ConsumeRefreshToken(ctx, hash, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Warn("refresh token reused or raced", "user_id", current.UserID)
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	u, err := s.Store.Users().GetUserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrInvalidRefreshToken
	}

	return s.issue(ctx, u)
}

// Logout revokes the refresh token if it exists. It never fails from the
// caller's point of view.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return nil
	}

	if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(raw)); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke refresh token on logout", "error", err)
	}
	return nil
}

// issue signs an access token and persists a new refresh token for u.
func (s *AuthService) issue(ctx context.Context, u domain.User) (*domain.AuthResult, error) {
	access, expiresAt, err := s.Sessions.IssueAccessToken(u, u.Roles)
	if err != nil {
		return nil, err
	}

	raw, err := s.Sessions.IssueRefreshTokenValue()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, s.Sessions.newRefreshRecord(u.ID, raw)); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &domain.AuthResult{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    expiresAt,
		User:         u.Projection(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
