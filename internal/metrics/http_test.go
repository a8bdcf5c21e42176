package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/conversations/{id}/messages",
		normalizePath("/api/conversations/5b0d4b8e-7a43-4c1e-9a55-3f7a0f9e2d11/messages"))
	assert.Equal(t, "/api/quota", normalizePath("/api/quota"))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/api/conversations/{id}/messages", "418")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/not-a-uuid/messages", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMiddleware_SkipsMetricsEndpoint(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	counter := HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "200")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, before, testutil.ToFloat64(counter))
}

func TestMiddleware_RecordsResponseSizeAndDefaultStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	counter := HTTPRequestsTotal.WithLabelValues("GET", "/api/unrouted", "200")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/unrouted", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(HTTPResponseSize), 1)
}

func TestRouteLabel(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/files/attachments/u/a.png", nil)
	req.Pattern = "GET /files/{key...}"
	assert.Equal(t, "/files/{key...}", routeLabel(req))

	req.Pattern = "/health"
	assert.Equal(t, "/health", routeLabel(req))

	req.Pattern = ""
	assert.Equal(t, "/files/attachments/u/a.png", routeLabel(req))
}

func TestAttachmentStored(t *testing.T) {
	counter := AttachmentsStored.WithLabelValues("image", "true")
	before := testutil.ToFloat64(counter)
	AttachmentStored("image", true)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
