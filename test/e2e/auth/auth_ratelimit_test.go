//go:build e2e

package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stocktake/pkg/authsdk"
)

// TestRateLimitLoginEndpoint verifies that /v1/auth/login has the strict
// limit (5 req/min by IP).
func TestRateLimitLoginEndpoint(t *testing.T) {
	c := setupAuthContainerWithDefaultRateLimits(t)
	client := authsdk.NewClient(c.baseURL)
	ctx := t.Context()

	req := authsdk.LoginRequest{Email: "nobody@example.com", Password: "wrong-password"}
	for i := range 5 {
		_, err := client.Login(ctx, req)
		require.Error(t, err)
		require.False(t, authsdk.IsCode(err, authsdk.ErrorCodeRateLimitExceeded), "Should not be rate limited yet (request %d)", i+1)
	}

	_, err := client.Login(ctx, req)
	assertAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimitExceeded)
}

// TestRateLimitIsPerEndpoint verifies that exhausting login does not block
// the health probes.
func TestRateLimitIsPerEndpoint(t *testing.T) {
	c := setupAuthContainerWithDefaultRateLimits(t)
	client := authsdk.NewClient(c.baseURL)
	ctx := t.Context()

	req := authsdk.LoginRequest{Email: "nobody@example.com", Password: "wrong-password"}
	var lastErr error
	for range 6 {
		_, lastErr = client.Login(ctx, req)
	}
	assertAPIError(t, lastErr, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimitExceeded)

	health, err := client.GetLiveness(ctx)
	assertHealthy(t, health, err)
}
