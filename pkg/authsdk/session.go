package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a Session refreshes.
const refreshBuffer = 30 * time.Second

// ErrNoRefreshToken is returned when the access token expired and the
// session holds no refresh token.
var ErrNoRefreshToken = errors.New("authsdk: access token expired and no refresh token available")

// Session is an authenticated session with automatic token refresh.
type Session struct {
	client *Client

	// Now is the session clock. Defaults to time.Now.
	Now func() time.Time

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	user         UserInfo
}

// NewSession wraps a token response.
func (c *Client) NewSession(tokens *TokenResponse) *Session {
	s := &Session{client: c, Now: time.Now}
	s.store(tokens)
	return s
}

// NewSessionFromTokens builds a session from stored tokens. The access
// token is refreshed on first use once expiresAt is near.
func (c *Client) NewSessionFromTokens(accessToken, refreshToken string, expiresAt time.Time) *Session {
	return &Session{
		client:       c,
		Now:          time.Now,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt.Add(-refreshBuffer),
	}
}

// store must be called with mu held for writing (or before the session is
// shared).
func (s *Session) store(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.user = tokens.User

	expiresAt := tokens.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	s.expiresAt = expiresAt.Add(-refreshBuffer)
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// getValidToken returns a usable access token, refreshing it if needed.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if s.now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}
	tokens, err := s.client.Refresh(ctx, s.refreshToken, s.accessToken)
	if err != nil {
		return err
	}
	s.store(tokens)
	return nil
}

// Refresh rotates the tokens now, whatever the access token's expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// User returns the user the last token response described. It is empty for
// sessions built with NewSessionFromTokens until the first refresh.
func (s *Session) User() UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) call(ctx context.Context, method, path string, body, target any, expectedStatus int) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}
	return s.client.call(ctx, method, path, token, body, target, expectedStatus)
}

// Me returns the signed in user.
func (s *Session) Me(ctx context.Context) (*UserInfo, error) {
	var out UserInfo
	if err := s.call(ctx, http.MethodGet, "/v1/auth/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// BeginTwoFactorSetup creates a pending secret.
func (s *Session) BeginTwoFactorSetup(ctx context.Context) (*TwoFactorSetupResponse, error) {
	var out TwoFactorSetupResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/setup", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnableTwoFactor confirms the pending secret with a code.
func (s *Session) EnableTwoFactor(ctx context.Context, code string) (bool, error) {
	var out TwoFactorStatusResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/enable", TwoFactorCodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

// DisableTwoFactor turns two factor authentication off.
func (s *Session) DisableTwoFactor(ctx context.Context) error {
	return s.call(ctx, http.MethodPost, "/v1/2fa/disable", nil, nil, http.StatusOK)
}

// VerifyTwoFactor checks a code against the active secret.
func (s *Session) VerifyTwoFactor(ctx context.Context, code string) (bool, error) {
	var out TwoFactorVerifyResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/verify", TwoFactorCodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// DeactivateUser soft-deactivates another user. Requires the admin role.
func (s *Session) DeactivateUser(ctx context.Context, userID string) error {
	return s.call(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/deactivate", nil, nil, http.StatusNoContent)
}

// Logout revokes the session's refresh token.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.refreshToken
	s.refreshToken = ""
	s.mu.Unlock()

	if token == "" {
		return nil
	}
	return s.client.Logout(ctx, token)
}
