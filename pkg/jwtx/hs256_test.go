package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	exampleIssuer   = "stocktake-auth"
	exampleAudience = "stocktake"
)

var exampleSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestHS256(t *testing.T, now time.Time) *jwtx.HS256 {
	t.Helper()
	h, err := jwtx.NewHS256(exampleSecret, exampleIssuer, exampleAudience)
	require.NoError(t, err)
	h.Now = func() time.Time { return now }
	return h
}

func exampleClaims(now time.Time, ttl time.Duration) jwtx.Claims {
	return jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:  "user-123",
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []string{"staff", "admin"},
		Issuer:   exampleIssuer,
		Audience: []string{exampleAudience},
		TTL:      ttl,
		Now:      now,
	})
}

func TestNewHS256RejectsShortSecret(t *testing.T) {
	_, err := jwtx.NewHS256([]byte("too-short"), exampleIssuer)
	require.Error(t, err)
}

func TestHS256SignAndVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	h := newTestHS256(t, now.Add(time.Minute))
	require.Equal(t, "HS256", h.Alg())

	token, err := h.Sign(exampleClaims(now, 15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(token, "."))

	got, err := h.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", got.Subject)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, []string{"staff", "admin"}, got.Roles)
	// NumericDate decodes into time.Local, so compare instants.
	require.WithinDuration(t, now.Add(15*time.Minute), got.ExpiresAt.Time, 0)
}

func TestHS256VerifyFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	h := newTestHS256(t, now)

	good, err := h.Sign(exampleClaims(now, 15*time.Minute))
	require.NoError(t, err)

	other, err := jwtx.NewHS256([]byte("ffffffffffffffffffffffffffffffff"), exampleIssuer, exampleAudience)
	require.NoError(t, err)
	foreign, err := other.Sign(exampleClaims(now, 15*time.Minute))
	require.NoError(t, err)

	// Splice the payload of a different token onto the good signature.
	bob := exampleClaims(now, 15*time.Minute)
	bob.Subject = "user-999"
	bobToken, err := h.Sign(bob)
	require.NoError(t, err)
	goodParts := strings.Split(good, ".")
	bobParts := strings.Split(bobToken, ".")
	spliced := goodParts[0] + "." + bobParts[1] + "." + goodParts[2]

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, exampleClaims(now, 15*time.Minute)).SignedString(exampleSecret)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, exampleClaims(now, 15*time.Minute)).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIss := exampleClaims(now, 15*time.Minute)
	wrongIss.Issuer = "someone-else"
	wrongIssToken, err := h.Sign(wrongIss)
	require.NoError(t, err)

	wrongAud := exampleClaims(now, 15*time.Minute)
	wrongAud.Audience = jwt.ClaimStrings{"billing"}
	wrongAudToken, err := h.Sign(wrongAud)
	require.NoError(t, err)

	expired, err := h.Sign(exampleClaims(now.Add(-time.Hour), 15*time.Minute))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-jwt", jwtx.ErrMalformed},
		{"empty", "", jwtx.ErrMalformed},
		{"wrong key", foreign, jwtx.ErrInvalidSig},
		{"spliced payload", spliced, jwtx.ErrInvalidSig},
		{"hs512", hs512, jwtx.ErrAlgMismatch},
		{"alg none", none, jwtx.ErrAlgMismatch},
		{"wrong issuer", wrongIssToken, jwtx.ErrIssuer},
		{"wrong audience", wrongAudToken, jwtx.ErrAudience},
		{"expired", expired, jwtx.ErrExpired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Verify(tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHS256ParseIgnoringExpiry(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0).UTC()
	h := newTestHS256(t, issued.Add(24*time.Hour))

	token, err := h.Sign(exampleClaims(issued, 15*time.Minute))
	require.NoError(t, err)

	_, err = h.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)

	claims, err := h.ParseIgnoringExpiry(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)

	t.Run("signature still enforced", func(t *testing.T) {
		other, err := jwtx.NewHS256([]byte("ffffffffffffffffffffffffffffffff"), exampleIssuer)
		require.NoError(t, err)
		foreign, err := other.Sign(exampleClaims(issued, 15*time.Minute))
		require.NoError(t, err)

		_, err = h.ParseIgnoringExpiry(foreign)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("alg still enforced", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, exampleClaims(issued, 15*time.Minute)).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = h.ParseIgnoringExpiry(none)
		require.ErrorIs(t, err, jwtx.ErrAlgMismatch)
	})
}
