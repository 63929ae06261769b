package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the stocktake auth service. It covers the
// unauthenticated endpoints and creates Sessions for the rest.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with a 10 second timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.call(ctx, http.MethodPost, "/v1/auth/register", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for tokens. Users with two factor enabled get
// ErrorCodeTwoFactorRequired until they send a code.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.call(ctx, http.MethodPost, "/v1/auth/login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates refreshToken. staleAccessToken may be empty.
func (c *Client) Refresh(ctx context.Context, refreshToken, staleAccessToken string) (*TokenResponse, error) {
	var out TokenResponse
	req := RefreshRequest{RefreshToken: refreshToken, AccessToken: staleAccessToken}
	if err := c.call(ctx, http.MethodPost, "/v1/auth/refresh", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes refreshToken. The server answers 200 whether or not the
// token was known.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.call(ctx, http.MethodPost, "/v1/auth/logout", "", LogoutRequest{RefreshToken: refreshToken}, nil, http.StatusOK)
}

// ForgotPassword asks for a reset token to be sent to email. The server
// answers 202 for unknown addresses too.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/v1/auth/password/forgot", "", ForgotPasswordRequest{Email: email}, nil, http.StatusAccepted)
}

// ResetPassword sets a new password using a reset token. Every session of
// the user is revoked.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	req := ResetPasswordRequest{Token: token, NewPassword: newPassword}
	return c.call(ctx, http.MethodPost, "/v1/auth/password/reset", "", req, nil, http.StatusOK)
}

// LoginSession logs in and wraps the tokens in a Session.
func (c *Client) LoginSession(ctx context.Context, req LoginRequest) (*Session, error) {
	tokens, err := c.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.NewSession(tokens), nil
}
