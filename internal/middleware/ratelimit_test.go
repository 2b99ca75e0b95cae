// AngelaMos | 2026
// ratelimit_test.go

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/capsules/private", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLocalLimiterEnforcesBurst(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Limit: PerMinute(60, 2)})
	h := rl.Handler(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1").Code)

	rec := hit(h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.2").Code, "keys are per client")
}

func TestRedisOutageFallsBackToLocal(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewRateLimiter(rdb, RateLimitConfig{Limit: PerMinute(60, 1)})
	h := rl.Handler(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.4").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.4").Code)
}

func TestInvalidLimitFailsClosed(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Limit: PerMinute(0, 0)})
	h := rl.Handler(http.HandlerFunc(okHandler))
	assert.Equal(t, http.StatusServiceUnavailable, hit(h, "10.0.0.5").Code)

	open := NewRateLimiter(nil, RateLimitConfig{Limit: PerMinute(0, 0), FailOpen: true})
	h = open.Handler(http.HandlerFunc(okHandler))
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.5").Code)
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "ratelimit:ip:192.0.2.7", KeyByIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.9")
	assert.Equal(t, "ratelimit:ip:203.0.113.9", KeyByIP(req))

	assert.Equal(t, KeyByIP(req), KeyByUser(req))

	authed := req.WithContext(context.WithValue(req.Context(), claimsKey, &AccessTokenClaims{UserID: "u1"}))
	assert.Equal(t, "ratelimit:user:u1", KeyByUser(authed))
}
