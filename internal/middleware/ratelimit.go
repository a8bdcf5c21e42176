package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter counts hits per key in fixed windows. Keys are opaque: the HTTP
// middleware uses users and client IPs, the relay uses user IDs.
type RateLimiter struct {
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*rateWindow

	stop     chan struct{}
	stopOnce sync.Once
}

type rateWindow struct {
	hits  int
	start time.Time
}

// RateDecision is the outcome of one hit.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// NewRateLimiter creates a limiter allowing limit hits per key per window and
// starts its sweeper. Call Stop when done.
func NewRateLimiter(limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		logger:  logger,
		now:     time.Now,
		windows: make(map[string]*rateWindow),
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Limit returns the number of hits allowed per window.
func (rl *RateLimiter) Limit() int { return rl.limit }

// Take records a hit for key and reports whether it fits the window.
// Denied hits are not counted.
func (rl *RateLimiter) Take(key string) RateDecision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &rateWindow{start: now}
		rl.windows[key] = w
	}

	resetIn := rl.window - now.Sub(w.start)
	if w.hits >= rl.limit {
		return RateDecision{ResetIn: resetIn}
	}
	w.hits++
	return RateDecision{Allowed: true, Remaining: rl.limit - w.hits, ResetIn: resetIn}
}

// Allow is Take reduced to its verdict.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.Take(key).Allowed
}

// sweep drops windows that have ended so idle keys do not accumulate.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictExpired()
		}
	}
}

func (rl *RateLimiter) evictExpired() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	evicted := 0
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.window {
			delete(rl.windows, key)
			evicted++
		}
	}
	if evicted > 0 {
		rl.logger.Debug("rate limit windows evicted", "count", evicted, "live", len(rl.windows))
	}
	return evicted
}

// Stop ends the sweeper. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware applies a RateLimiter to HTTP routes.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit rate limits requests per authenticated user, or per client IP for
// anonymous requests. Every response carries the X-RateLimit headers; denials
// add Retry-After and respond 429.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		d := m.limiter.Take(key)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.Limit()))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			m.logger.Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"method", r.Method,
			)
			h.Set("Retry-After", strconv.Itoa(max(1, int(d.ResetIn.Seconds()))))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit(""))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Helpers
// =============================================================================

func rateLimitKey(r *http.Request) string {
	if user := auth.GetUser(r.Context()); user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + getClientIP(r)
}

// getClientIP returns the originating client address. The first
// X-Forwarded-For entry wins, then X-Real-IP, then the socket peer.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
