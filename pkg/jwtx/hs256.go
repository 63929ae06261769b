package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretSize is the shortest HMAC key NewHS256 accepts. RFC 7518 asks for
// a key at least as long as the hash output.
const MinSecretSize = 32

// HS256 signs and verifies tokens with a single shared HMAC-SHA256 key. It
// satisfies both Signer and Verifier.
type HS256 struct {
	secret   []byte
	issuer   string
	audience []string

	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration

	// Now is the verification clock. Defaults to time.Now.
	Now func() time.Time
}

// NewHS256 builds an HS256 signer/verifier. Empty issuer or audience disables
// the matching check on Verify.
func NewHS256(secret []byte, issuer string, audience ...string) (*HS256, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("jwtx: HS256 secret must be at least %d bytes, got %d", MinSecretSize, len(secret))
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &HS256{
		secret:   key,
		issuer:   issuer,
		audience: audience,
		Now:      time.Now,
	}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Issuer is the iss value Verify enforces.
func (h *HS256) Issuer() string { return h.issuer }

// Audience is the aud set Verify enforces.
func (h *HS256) Audience() []string { return h.audience }

// Sign takes your claims and turns them into a signed JWT string.
func (h *HS256) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return s, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry.
func (h *HS256) Verify(tokenStr string) (Claims, error) {
	claims, err := h.parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(h.audience); err != nil {
		return Claims{}, err
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if err := claims.ValidateExpiryWithLeeway(now().UTC(), h.Leeway); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}

// ParseIgnoringExpiry checks signature and algorithm only. The returned
// claims identify who a stale token belonged to and must never authorize a
// request on their own.
func (h *HS256) ParseIgnoringExpiry(tokenStr string) (Claims, error) {
	claims, err := h.parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	return *claims, nil
}

func (h *HS256) parse(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAlgMismatch
		}
		return h.secret, nil
	})
	if err != nil {
		return nil, mapParseError(token, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}
	return claims, nil
}

// mapParseError folds golang-jwt errors into the jwtx sentinels.
func mapParseError(token *jwt.Token, err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Unknown or missing alg header.
		return fmt.Errorf("%w: %v", ErrAlgMismatch, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		if token != nil && token.Method != nil && token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return ErrAlgMismatch
		}
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
