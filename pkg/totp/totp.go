// Package totp implements RFC 6238 time-based one-time passwords with the
// parameters every mainstream authenticator app defaults to: HMAC-SHA1,
// 30 second steps and 6 digits.
package totp

import (
	"crypto/subtle"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"

	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
)

var hotpOpts = hotp.ValidateOpts{
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

const (
	// Period is the length of one time step.
	Period = 30 * time.Second
	// Digits is the length of a rendered code.
	Digits = 6
	// Skew is how many steps either side of the current one are accepted.
	Skew = 1
)

// Engine computes and verifies codes against a clock. The zero value uses
// time.Now.
type Engine struct {
	Now func() time.Time
}

// New returns an Engine reading the wall clock.
func New() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// CurrentTimeStep returns floor(unix seconds / 30) for t.
func CurrentTimeStep(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(Period/time.Second) // #nosec G115 - pre-1970 clocks are not supported
}

// ComputeCode returns the zero padded code for secret at the given step.
func ComputeCode(secret []byte, step uint64) string {
	code, err := hotp.GenerateCodeCustom(cryptox.EncodeSecret(secret), step, hotpOpts)
	if err != nil {
		// Only reachable with a malformed base32 secret, which EncodeSecret
		// never produces. An empty code never matches.
		return ""
	}
	return code
}

// Verify reports whether code matches secret at the current step or one
// step either side of it.
func (e *Engine) Verify(secret []byte, code string) bool {
	return VerifyAt(secret, code, e.now())
}

// VerifyAt is Verify against an explicit instant. Malformed codes are
// rejected rather than treated as errors. Every window step is compared so
// the amount of work does not depend on which step matched.
func VerifyAt(secret []byte, code string, t time.Time) bool {
	if len(secret) == 0 || !isDigits(code) {
		return false
	}

	step := CurrentTimeStep(t)
	lo := uint64(0)
	if step > Skew {
		lo = step - Skew
	}

	match := 0
	for s := lo; s <= step+Skew; s++ {
		match |= subtle.ConstantTimeCompare([]byte(ComputeCode(secret, s)), []byte(code))
	}
	return match == 1
}

// ProvisioningURI builds the otpauth:// URI authenticator apps scan, in the
// form otpauth://totp/{issuer}:{account}?secret={secret}&issuer={issuer}.
func ProvisioningURI(issuer, account, encodedSecret string) string {
	label := url.PathEscape(issuer + ":" + account)

	return "otpauth://totp/" + label +
		"?secret=" + url.QueryEscape(encodedSecret) +
		"&issuer=" + url.QueryEscape(issuer)
}

func isDigits(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := range len(code) {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
