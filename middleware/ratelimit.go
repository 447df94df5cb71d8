package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter implements a per-identity sliding window rate limiter
// with three simultaneously-enforced windows: a token-bucket burst
// window backed by golang.org/x/time/rate, a per-minute window, and a
// per-hour window. In-memory; a distributed deployment would back this
// with Redis counters instead.
type RateLimiter struct {
	logger zerolog.Logger

	enabled bool
	rpm     int
	rph     int
	burst   int

	mu      sync.Mutex
	windows map[string]*slidingWindow
}

// burstWindowSeconds is the refill period the burst token bucket is
// sized against: up to burst requests may arrive in any 10 second span.
const burstWindowSeconds = 10.0

type slidingWindow struct {
	minuteTokens []time.Time
	hourTokens   []time.Time
	burstBucket  *rate.Limiter
	lastClean    time.Time
}

// NewRateLimiter creates a new rate limiter. burst caps requests in
// any rolling 10 second span.
func NewRateLimiter(logger zerolog.Logger, enabled bool, rpm, rph, burst int) *RateLimiter {
	return &RateLimiter{
		logger:  logger.With().Str("component", "rate_limiter").Logger(),
		enabled: enabled,
		rpm:     rpm,
		rph:     rph,
		burst:   burst,
		windows: make(map[string]*slidingWindow),
	}
}

// identity returns the key a caller is rate-limited under. The rate
// limiter runs ahead of the authenticator, so it reads whatever
// identity the caller presented without validating it: the raw
// Authorization header when present, otherwise the peer address.
func identity(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		return v
	}
	return r.RemoteAddr
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := identity(r)
		allowed, remaining, resetAt := rl.allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.rpm))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, fmt.Sprintf(`{"error":"rate_limit_exceeded","message":"rate limit exceeded","retry_after":%d}`, retryAfter), http.StatusTooManyRequests)
			rl.logger.Warn().Str("key", redactKey(key)).Int("limit_rpm", rl.rpm).Msg("rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func redactKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "..."
}

func (rl *RateLimiter) allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	resetAt := now.Add(time.Minute)

	sw, exists := rl.windows[key]
	if !exists {
		sw = &slidingWindow{
			lastClean:   now,
			burstBucket: rate.NewLimiter(rate.Limit(float64(rl.burst)/burstWindowSeconds), rl.burst),
		}
		rl.windows[key] = sw
	}

	if now.Sub(sw.lastClean) > 10*time.Second {
		sw.minuteTokens = pruneBefore(sw.minuteTokens, now.Add(-time.Minute))
		sw.hourTokens = pruneBefore(sw.hourTokens, now.Add(-time.Hour))
		sw.lastClean = now
	}

	minuteCount := countAfter(sw.minuteTokens, now.Add(-time.Minute))
	hourCount := countAfter(sw.hourTokens, now.Add(-time.Hour))
	remaining := rl.rpm - minuteCount

	reservation := sw.burstBucket.ReserveN(now, 1)
	burstExceeded := !reservation.OK() || reservation.DelayFrom(now) > 0
	if burstExceeded && reservation.OK() {
		reservation.CancelAt(now)
	}

	if burstExceeded || minuteCount >= rl.rpm || hourCount >= rl.rph {
		if !burstExceeded {
			// burst bucket allowed the request but the minute/hour window
			// didn't; return the reserved token.
			reservation.CancelAt(now)
		}
		if len(sw.minuteTokens) > 0 {
			resetAt = sw.minuteTokens[0].Add(time.Minute)
		}
		if remaining < 0 {
			remaining = 0
		}
		return false, 0, resetAt
	}

	sw.minuteTokens = append(sw.minuteTokens, now)
	sw.hourTokens = append(sw.hourTokens, now)
	return true, remaining - 1, resetAt
}

func pruneBefore(tokens []time.Time, cutoff time.Time) []time.Time {
	out := make([]time.Time, 0, len(tokens))
	for _, t := range tokens {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func countAfter(tokens []time.Time, cutoff time.Time) int {
	count := 0
	for _, t := range tokens {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// Cleanup removes stale entries. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * time.Hour)
	for key, sw := range rl.windows {
		if len(sw.hourTokens) == 0 || sw.hourTokens[len(sw.hourTokens)-1].Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}
