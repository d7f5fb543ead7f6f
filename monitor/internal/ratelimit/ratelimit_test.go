package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*redisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), limit, window, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	rl, ok := limiter.(*redisRateLimiter)
	require.True(t, ok)
	return rl, mr
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRedisRateLimiter("", 100, time.Minute, true)
	require.NoError(t, err)
	assert.IsType(t, &NoOpRateLimiter{}, limiter)
}

func TestNewRedisRateLimiter_Errors(t *testing.T) {
	_, err := NewRedisRateLimiter("not a url", 10, time.Minute, false)
	assert.Error(t, err)

	_, err = NewRedisRateLimiter("redis://127.0.0.1:1", 10, time.Minute, false)
	assert.Error(t, err)

	_, err = NewRedisRateLimiter("redis://127.0.0.1:6379", 0, time.Minute, false)
	assert.Error(t, err)
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "api:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, err := limiter.Allow(ctx, "api:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "api:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed, "other keys have their own window")

	assert.True(t, mr.Exists(keyPrefix+"api:10.0.0.1"))

	clock = clock.Add(61 * time.Second)
	allowed, err = limiter.Allow(ctx, "api:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed, "old entries slide out of the window")
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	limiter, mr := newTestLimiter(t, 3, time.Minute)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2, time.Minute)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(limiter, "api", next)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/exceptions", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do().Code)
	assert.Equal(t, http.StatusNoContent, do().Code)

	limited := do()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "rate limit exceeded")

	// Redis failures let traffic through.
	mr.Close()
	assert.Equal(t, http.StatusNoContent, do().Code)
}
