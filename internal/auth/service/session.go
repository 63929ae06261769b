package service

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/idx"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
)

// SessionIssuer mints access tokens and refresh token values. Its config is
// fixed at construction.
type SessionIssuer struct {
	Signer     *jwtx.HS256
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// NewSessionIssuer fills in default TTLs for zero values.
func NewSessionIssuer(signer *jwtx.HS256, accessTTL, refreshTTL time.Duration) *SessionIssuer {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return &SessionIssuer{
		Signer:     signer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Now:        time.Now,
	}
}

func (s *SessionIssuer) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// IssueAccessToken signs an access token for u carrying roles in order.
func (s *SessionIssuer) IssueAccessToken(u domain.User, roles []string) (string, time.Time, error) {
	claims := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:  u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    roles,
		Issuer:   s.Signer.Issuer(),
		Audience: s.Signer.Audience(),
		TTL:      s.AccessTTL,
		Now:      s.now(),
	})

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssueRefreshTokenValue returns a fresh opaque refresh token.
func (s *SessionIssuer) IssueRefreshTokenValue() (string, error) {
	return cryptox.GenerateOpaqueToken()
}

// newRefreshRecord returns the row to persist for a raw refresh token.
func (s *SessionIssuer) newRefreshRecord(userID, raw string) domain.RefreshToken {
	now := s.now()
	return domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ParseClaimsIgnoringExpiry recovers the identity in a possibly stale access
// token. Only the refresh flow may call it; the result never authorizes
// anything.
func (s *SessionIssuer) ParseClaimsIgnoringExpiry(token string) (jwtx.Claims, error) {
	return s.Signer.ParseIgnoringExpiry(token)
}
