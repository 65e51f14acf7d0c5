package relay

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the RateLimit handler.
type RateLimitConfig struct {
	Rate            float64                 // requests per second
	Burst           int                     // max burst
	KeyFunc         func(c *Context) string // default: IP, method and endpoint
	Message         string                  // default: "Rate limit exceeded"
	CleanupInterval time.Duration           // how often to prune idle limiters (default: 1m)
	MaxIdle         time.Duration           // remove limiters idle longer than this (default: 5m)
}

// RateLimit returns a handler that applies per-key rate limiting. Register
// it as a BEFORE-MATCHED handler so the default key can include the matched
// endpoint. Requests over the limit fail with 429.
func RateLimit(cfg RateLimitConfig) Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultRateLimitKey
	}
	if cfg.Message == "" {
		cfg.Message = "Rate limit exceeded"
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}
	retryAfter := "1"
	if cfg.Rate > 0 && cfg.Rate < 1 {
		retryAfter = strconv.FormatFloat(1/cfg.Rate, 'f', 0, 64)
	}

	var (
		mu          sync.Mutex
		limiters    = make(map[string]*limiterEntry)
		lastCleanup time.Time
	)

	return func(c *Context) error {
		key := cfg.KeyFunc(c)

		mu.Lock()
		now := time.Now()

		// Lazy cleanup of expired limiters.
		if now.Sub(lastCleanup) >= cleanupInterval {
			for k, e := range limiters {
				if now.Sub(e.lastSeen) > maxIdle {
					delete(limiters, k)
				}
			}
			lastCleanup = now
		}

		entry, ok := limiters[key]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
			}
			limiters[key] = entry
		}
		entry.lastSeen = now
		mu.Unlock()

		if !entry.limiter.Allow() {
			c.SetHeader("Retry-After", retryAfter)
			return TooManyRequests(cfg.Message)
		}
		return nil
	}
}

func defaultRateLimitKey(c *Context) string {
	endpoint := c.Path()
	if c.endpoint != nil {
		endpoint = c.endpoint.pattern.String()
	}
	return c.IP() + "|" + c.Method() + "|" + endpoint
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}
