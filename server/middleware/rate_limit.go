// Package middleware holds HTTP middleware shared across API surfaces.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig shapes the per-key token bucket.
type RateLimitConfig struct {
	// Interval between replenished tokens.
	Interval time.Duration
	// Burst is the bucket capacity.
	Burst int
}

// DefaultRateLimitConfig allows 10 requests per second with a burst of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Interval: time.Second / 10,
		Burst:    20,
	}
}

// RateLimiter keeps one token bucket per caller key.
type RateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	limits map[string]*rate.Limiter
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Interval <= 0 {
		config.Interval = time.Second / 10
	}
	if config.Burst <= 0 {
		config.Burst = 20
	}
	return &RateLimiter{
		config: config,
		limits: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(rl.config.Interval), rl.config.Burst)
	rl.limits[key] = limiter
	return limiter
}

// Allow reports whether a request under the given key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// RateLimitMiddleware rejects over-limit requests with 429. keyFunc derives
// the bucket key from the request, typically the owner or remote address.
func RateLimitMiddleware(rl *RateLimiter, keyFunc func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(keyFunc(c)) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
