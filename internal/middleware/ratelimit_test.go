package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/handler"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, window, newTestLogger())
	rl.now = clock.now
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	rl, _ := newClockedLimiter(t, 5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("user:a"), "hit %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("user:a"), "6th hit should be limited")

	// Keys are independent.
	assert.True(t, rl.Allow("user:b"))
}

func TestRateLimiter_TakeReportsRemainingAndReset(t *testing.T) {
	rl, clock := newClockedLimiter(t, 3, time.Minute)

	d := rl.Take("user:a")
	assert.Equal(t, RateDecision{Allowed: true, Remaining: 2, ResetIn: time.Minute}, d)

	clock.advance(20 * time.Second)
	rl.Take("user:a")
	d = rl.Take("user:a")
	assert.Equal(t, RateDecision{Allowed: true, Remaining: 0, ResetIn: 40 * time.Second}, d)

	d = rl.Take("user:a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.ResetIn)
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl, clock := newClockedLimiter(t, 2, time.Minute)

	rl.Allow("user:a")
	rl.Allow("user:a")
	require.False(t, rl.Allow("user:a"))

	clock.advance(59 * time.Second)
	require.False(t, rl.Allow("user:a"))

	clock.advance(time.Second)
	assert.True(t, rl.Allow("user:a"), "a new window starts once the old one ends")
}

func TestRateLimiter_EvictExpired(t *testing.T) {
	rl, clock := newClockedLimiter(t, 1, time.Minute)

	rl.Allow("user:a")
	clock.advance(30 * time.Second)
	rl.Allow("user:b")
	clock.advance(30 * time.Second)

	assert.Equal(t, 1, rl.evictExpired())
	assert.False(t, rl.Allow("user:b"), "live windows survive the sweep")
	assert.True(t, rl.Allow("user:a"))
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, newTestLogger())
	rl.Stop()
	rl.Stop()
}

// =============================================================================
// RateLimitMiddleware Tests
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, newTestLogger())
	defer rl.Stop()
	wrapped := NewRateLimitMiddleware(rl, newTestLogger()).Limit(okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec = httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body handler.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, domain.ERATELIMIT, body.Code)
}

func TestRateLimitMiddleware_KeysByUserWhenAuthenticated(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, newTestLogger())
	defer rl.Stop()
	wrapped := NewRateLimitMiddleware(rl, newTestLogger()).Limit(okHandler())

	// Two users behind the same NAT address get separate budgets.
	for _, id := range []uuid.UUID{uuid.New(), uuid.New()} {
		req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req = req.WithContext(auth.SetUser(req.Context(), &domain.User{ID: id}))
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitMiddleware_ProxyHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"x-forwarded-for", "X-Forwarded-For", "203.0.113.195, 70.41.3.18, 150.172.238.178"},
		{"x-real-ip", "X-Real-IP", "203.0.113.195"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(2, time.Minute, newTestLogger())
			defer rl.Stop()
			wrapped := NewRateLimitMiddleware(rl, newTestLogger()).Limit(okHandler())

			for i := 0; i < 3; i++ {
				req := httptest.NewRequest(http.MethodPost, "/api/calls", nil)
				req.RemoteAddr = "10.0.0.1:12345" // proxy
				req.Header.Set(tt.header, tt.value)
				rec := httptest.NewRecorder()
				wrapped.ServeHTTP(rec, req)

				want := http.StatusOK
				if i == 2 {
					want = http.StatusTooManyRequests
				}
				assert.Equal(t, want, rec.Code, "request %d", i+1)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"peer with port", "192.0.2.7:5555", nil, "192.0.2.7"},
		{"peer without port", "192.0.2.7", nil, "192.0.2.7"},
		{"forwarded chain", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.2"}, "203.0.113.9"},
		{"empty forwarded entry falls through", "10.0.0.1:1", map[string]string{"X-Forwarded-For": ",10.0.0.2", "X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"ipv6 peer", "[2001:db8::1]:443", nil, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
