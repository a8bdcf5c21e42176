package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveSecurity(isSecure bool, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(isSecure).Handler(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	rec := serveSecurity(true, httptest.NewRequest(http.MethodGet, "/api/quota", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Contains(t, rec.Header().Get("Permissions-Policy"), "camera=()")
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeadersMiddleware_NoHSTSInDevelopment(t *testing.T) {
	rec := serveSecurity(false, httptest.NewRequest(http.MethodGet, "/api/quota", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeadersMiddleware_NoStoreForAuthenticatedRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := serveSecurity(false, req)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = serveSecurity(false, httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = serveSecurity(false, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestSecurityHeadersMiddleware_HandlerMayOverrideCaching(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/files/attachments/a.png", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	})).ServeHTTP(rec, req)

	assert.Equal(t, "private, max-age=86400", rec.Header().Get("Cache-Control"))
}
