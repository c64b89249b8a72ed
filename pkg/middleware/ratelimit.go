package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/croplink/croplink/pkg/orgs"
	"github.com/croplink/croplink/pkg/rbac"
)

// QuotaSource answers plan quota lookups. orgs.Service implements it.
type QuotaSource interface {
	Quotas(ctx context.Context, orgID int64) (orgs.PlanQuotas, error)
}

// Window is the fixed rate limit window. Plan quotas are expressed per hour.
const Window = time.Hour

// AnonymousLimit is the per-IP limit for unauthenticated requests
const AnonymousLimit = 100

// Counter counts requests within the current window for a key. The local
// implementation is per-instance; RedisCounter shares counts across
// instances.
type Counter interface {
	// Incr increments the key's counter and returns the new count together
	// with the time remaining in the window.
	Incr(ctx context.Context, key string) (count int64, ttl time.Duration, err error)
}

// LocalCounter is an in-memory fixed-window counter
type LocalCounter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewLocalCounter creates an in-memory counter
func NewLocalCounter() *LocalCounter {
	return &LocalCounter{windows: make(map[string]*window)}
}

// Incr increments the key's counter within the current window
func (c *LocalCounter) Incr(ctx context.Context, key string) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	w, ok := c.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(Window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, time.Until(w.resetAt), nil
}

// Cleanup drops expired windows
func (c *LocalCounter) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, w := range c.windows {
		if now.After(w.resetAt) {
			delete(c.windows, key)
		}
	}
}

// StartCleanup runs Cleanup periodically until the context is cancelled
func (c *LocalCounter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(Window / 4)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimiter enforces plan-based request limits per organization, with a
// per-IP fallback for unauthenticated requests. Quota lookup failures and
// counter failures fail open.
type RateLimiter struct {
	counter Counter
	quotas  QuotaSource
}

// NewRateLimiter creates a rate limiter over the given counter
func NewRateLimiter(counter Counter, quotas QuotaSource) *RateLimiter {
	return &RateLimiter{counter: counter, quotas: quotas}
}

// Handler wraps an HTTP handler with rate limiting
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, limit := rl.keyAndLimit(ctx, r)

		count, ttl, err := rl.counter.Incr(ctx, key)
		if err != nil {
			// Fail open rather than take the API down with the counter
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))

		if count > limit {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":{"code":"rate_limited","message":"rate limit exceeded, retry in %.0fs"}}`, ttl.Seconds())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// keyAndLimit derives the counter key and limit for a request. Organization
// requests share one bucket per org; anonymous requests are keyed by IP.
func (rl *RateLimiter) keyAndLimit(ctx context.Context, r *http.Request) (string, int64) {
	principal, ok := rbac.PrincipalFromContext(ctx)
	if !ok || principal.OrganizationID == nil {
		return "ip:" + clientIP(r), AnonymousLimit
	}

	orgID := *principal.OrganizationID
	key := fmt.Sprintf("org:%d", orgID)

	quotas, err := rl.quotas.Quotas(ctx, orgID)
	if err != nil || quotas.APIRateLimitPerHour <= 0 {
		return key, AnonymousLimit
	}
	return key, int64(quotas.APIRateLimitPerHour)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
