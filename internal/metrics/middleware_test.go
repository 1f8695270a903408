package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := wrapResponseWriter(w)

	// Test initial status
	if rw.status != http.StatusOK {
		t.Errorf("Expected initial status %d, got %d", http.StatusOK, rw.status)
	}

	// Test WriteHeader
	rw.WriteHeader(http.StatusNotFound)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rw.status)
	}

	// Test double WriteHeader (should be ignored)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status to remain %d, got %d", http.StatusNotFound, rw.status)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := wrapResponseWriter(w)

	// Write without explicit WriteHeader
	_, err := rw.Write([]byte("test"))
	if err != nil {
		t.Errorf("Write failed: %v", err)
	}

	// Status should default to 200
	if rw.status != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rw.status)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrapped := HTTPMiddleware(m)(handler)

	req := httptest.NewRequest("GET", "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}

	if got := counterValue(t, m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/jobs", "200")); got != 1 {
		t.Errorf("api_requests_total = %v, want 1", got)
	}
}

func TestHTTPMiddlewareTracksErrors(t *testing.T) {
	m := New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	wrapped := HTTPMiddleware(m)(handler)

	req := httptest.NewRequest("GET", "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if got := counterValue(t, m.APIErrorsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("api_errors_total{not_found} = %v, want 1", got)
	}
}

func TestHTTPMiddlewareNilMetrics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := HTTPMiddleware(nil)(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestNormalizePathFallback(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/jobs/550e8400-e29b-41d4-a716-446655440000", "/api/v1/jobs/{id}"},
		{"/api/v1/jobs/not-a-uuid", "/api/v1/jobs/not-a-uuid"},
		{"/health", "/health"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		if got := normalizePath(req); got != tt.want {
			t.Errorf("normalizePath(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{500, "server_error"},
		{503, "server_error"},
		{429, "rate_limited"},
		{401, "auth_error"},
		{403, "auth_error"},
		{404, "not_found"},
		{400, "bad_request"},
		{422, "client_error"},
		{200, "unknown"},
	}

	for _, tt := range tests {
		if got := categorizeStatus(tt.status); got != tt.want {
			t.Errorf("categorizeStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
