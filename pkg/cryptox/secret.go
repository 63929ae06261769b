package cryptox

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

// TOTPSecretSize is the RFC 4226 recommended shared secret length (160 bits).
const TOTPSecretSize = 20

// manualEntryGroup is how many characters are shown per group when a secret
// is displayed for typing into an authenticator app.
const manualEntryGroup = 4

// ErrDecode is returned when an encoded secret cannot be decoded.
var ErrDecode = errors.New("cryptox: malformed encoded secret")

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns n bytes from crypto/rand.
func GenerateSecret(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("secret size must be positive, got %d", n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return buf, nil
}

// EncodeSecret renders b as unpadded RFC 4648 base32. The output only ever
// contains A-Z and 2-7.
func EncodeSecret(b []byte) string {
	return secretEncoding.EncodeToString(b)
}

// DecodeSecret inverts EncodeSecret. Lower case input, grouping spaces or
// hyphens and stray padding are all accepted.
func DecodeSecret(s string) ([]byte, error) {
	s = normalizeSecret(s)
	if s == "" {
		return nil, ErrDecode
	}

	// Unpadded base32 can never end on a 1, 3 or 6 character quantum.
	switch len(s) % 8 {
	case 1, 3, 6:
		return nil, ErrDecode
	}

	b, err := secretEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}

// FormatForManualEntry splits an encoded secret into space separated groups
// of four, e.g. "JBSW Y3DP EHPK 3PXP".
func FormatForManualEntry(encoded string) string {
	encoded = normalizeSecret(encoded)

	var sb strings.Builder
	sb.Grow(len(encoded) + len(encoded)/manualEntryGroup)
	for i, r := range encoded {
		if i > 0 && i%manualEntryGroup == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func normalizeSecret(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	return strings.ToUpper(s)
}
