package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// MetricsAuthMiddleware guards the Prometheus scrape endpoint with HTTP basic
// auth. The configured password may be plaintext or a bcrypt hash; a value
// bcrypt can parse a cost from is treated as a hash.
type MetricsAuthMiddleware struct {
	username string
	password []byte
	hashed   bool
	logger   *slog.Logger
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware. With an
// empty username and password the endpoint is open.
func NewMetricsAuthMiddleware(username, password string, logger *slog.Logger) *MetricsAuthMiddleware {
	_, err := bcrypt.Cost([]byte(password))
	return &MetricsAuthMiddleware{
		username: username,
		password: []byte(password),
		hashed:   err == nil,
		logger:   logger,
	}
}

// Enabled reports whether scrapes must authenticate.
func (m *MetricsAuthMiddleware) Enabled() bool {
	return m.username != "" || len(m.password) > 0
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !m.valid(user, pass) {
			m.logger.Warn("metrics scrape rejected", "ip", getClientIP(r), "credentials", ok)
			w.Header().Set("WWW-Authenticate", `Basic realm="coachly metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MetricsAuthMiddleware) valid(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
	var passOK bool
	if m.hashed {
		passOK = bcrypt.CompareHashAndPassword(m.password, []byte(pass)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(pass), m.password) == 1
	}
	return userOK && passOK
}
