package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croplink/croplink/pkg/contextkeys"
	"github.com/croplink/croplink/pkg/orgs"
	"github.com/croplink/croplink/pkg/rbac"
)

// fakeQuotas maps org IDs to plan quotas
type fakeQuotas struct {
	plans map[int64]orgs.PlanTier
}

func (f fakeQuotas) Quotas(ctx context.Context, orgID int64) (orgs.PlanQuotas, error) {
	return orgs.DefaultQuotas(f.plans[orgID]), nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func orgRequest(orgID int64) *http.Request {
	r := httptest.NewRequest("GET", "/farms", nil)
	principal := &rbac.Principal{UserID: 7, OrganizationID: &orgID}
	return r.WithContext(contextkeys.WithPrincipal(r.Context(), principal))
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(NewLocalCounter(), fakeQuotas{plans: map[int64]orgs.PlanTier{1: orgs.PlanFree}})
	handler := rl.Handler(okHandler())

	// Free plan allows 1000/hour
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, orgRequest(1))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "999", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	counter := NewLocalCounter()
	rl := NewRateLimiter(counter, fakeQuotas{plans: map[int64]orgs.PlanTier{1: orgs.PlanFree}})
	handler := rl.Handler(okHandler())

	limit := orgs.DefaultQuotas(orgs.PlanFree).APIRateLimitPerHour
	for i := 0; i < limit; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, orgRequest(1))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, orgRequest(1))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiterPlansDiffer(t *testing.T) {
	quotas := fakeQuotas{plans: map[int64]orgs.PlanTier{1: orgs.PlanFree, 2: orgs.PlanPro}}
	rl := NewRateLimiter(NewLocalCounter(), quotas)
	handler := rl.Handler(okHandler())

	wFree := httptest.NewRecorder()
	handler.ServeHTTP(wFree, orgRequest(1))
	wPro := httptest.NewRecorder()
	handler.ServeHTTP(wPro, orgRequest(2))

	assert.Equal(t, "1000", wFree.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "25000", wPro.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiterOrgsIsolated(t *testing.T) {
	counter := NewLocalCounter()
	rl := NewRateLimiter(counter, fakeQuotas{plans: map[int64]orgs.PlanTier{1: orgs.PlanFree, 2: orgs.PlanFree}})
	handler := rl.Handler(okHandler())

	limit := orgs.DefaultQuotas(orgs.PlanFree).APIRateLimitPerHour
	for i := 0; i < limit+1; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), orgRequest(1))
	}

	// Org 1 exhausted; org 2 untouched
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, orgRequest(1))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, orgRequest(2))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterAnonymousByIP(t *testing.T) {
	rl := NewRateLimiter(NewLocalCounter(), fakeQuotas{})
	handler := rl.Handler(okHandler())

	r := httptest.NewRequest("GET", "/farms", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
}

func TestRedisCounter(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	counter := NewRedisCounter(client, "test")
	ctx := context.Background()

	count, ttl, err := counter.Incr(ctx, "org:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, Window, ttl)

	count, _, err = counter.Incr(ctx, "org:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Window expiry resets the count
	srv.FastForward(Window)
	count, _, err = counter.Incr(ctx, "org:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, counter.Reset(ctx, "org:1"))
	count, _, err = counter.Incr(ctx, "org:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRateLimiterRedisBacked(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(NewRedisCounter(client, "test"), fakeQuotas{plans: map[int64]orgs.PlanTier{1: orgs.PlanFree}})
	handler := rl.Handler(okHandler())

	limit := orgs.DefaultQuotas(orgs.PlanFree).APIRateLimitPerHour
	for i := 0; i < limit; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, orgRequest(1))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, orgRequest(1))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterFailsOpenOnRedisError(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	srv.Close()

	rl := NewRateLimiter(NewRedisCounter(client, "test"), fakeQuotas{plans: map[int64]orgs.PlanTier{1: orgs.PlanFree}})
	handler := rl.Handler(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, orgRequest(1))
	assert.Equal(t, http.StatusOK, w.Code)
}
