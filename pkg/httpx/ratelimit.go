package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int

	// Window is the time window for rate limiting
	Window time.Duration

	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Rate limit profiles. Each can be overridden with RATELIMIT_{PROFILE}_REQUESTS,
// RATELIMIT_{PROFILE}_WINDOW (Go duration) and RATELIMIT_{PROFILE}_BURST.
var (
	// StrictLimit for credential and code endpoints (brute force prevention).
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit for authenticated mutations and token refresh.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit for reads and health probes.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit, nil)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit, nil)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit, nil)
}

// ParseRateLimitFromEnv overlays RATELIMIT_{profile}_* variables onto def.
// Unparseable or non-positive values keep the default for that field. A nil
// environ reads the process environment.
func ParseRateLimitFromEnv(profile string, def RateLimitConfig, environ map[string]string) RateLimitConfig {
	opts := env.Options{Prefix: "RATELIMIT_" + profile + "_"}
	if environ != nil {
		opts.Environment = environ
	}

	// Parse field by field so one bad value does not discard the others.
	out := def
	var requests struct {
		V int `env:"REQUESTS"`
	}
	if err := env.ParseWithOptions(&requests, opts); err == nil && requests.V > 0 {
		out.RequestsPerWindow = requests.V
	}
	var window struct {
		V time.Duration `env:"WINDOW"`
	}
	if err := env.ParseWithOptions(&window, opts); err == nil && window.V > 0 {
		out.Window = window.V
	}
	var burst struct {
		V int `env:"BURST"`
	}
	if err := env.ParseWithOptions(&burst, opts); err == nil && burst.V > 0 {
		out.Burst = burst.V
	}
	return out
}

// KeyExtractor pulls the bucket key for a request (IP, user id, ...).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor extracts the user ID from the request context.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// CompositeKeyExtractor joins the non-empty keys of several extractors.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// idleSweepInterval is how often idle buckets are dropped.
const idleSweepInterval = 5 * time.Minute

// rateLimiter keeps one token bucket per key.
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu        sync.Mutex
	lastSweep time.Time
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeSweep()
	return actual.(*rate.Limiter)
}

// maybeSweep drops buckets that have refilled completely; their keys have
// been idle for at least one window.
func (rl *rateLimiter) maybeSweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastSweep) < idleSweepInterval {
		return
	}
	rl.lastSweep = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware limits requests per key. Requests with no key pass.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	rl := &rateLimiter{
		rate:      rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:     config.Burst,
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getLimiter(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			// Peek at when the next token lands without consuming it.
			reservation := limiter.Reserve()
			retryAfter := max(int(reservation.Delay().Seconds()), 1)
			reservation.Cancel()

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", config.Window.String())

			log.Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)
			WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		})
	}
}

// RateLimitByIP limits by client IP.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated user ID, scoped per IP. Falls back
// to IP alone when no user is on the context.
func RateLimitByUser(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}
