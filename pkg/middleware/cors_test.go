package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, origins []string, method, origin string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/agents", nil)
	req.Header.Set("Origin", origin)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSOrigins(t *testing.T) {
	origins := []string{"http://wallboard.local", "http://ops.example.com"}

	tests := []struct {
		name            string
		origin          string
		wantOrigin      string
		wantCredentials string
	}{
		{"wallboard", "http://wallboard.local", "http://wallboard.local", "true"},
		{"ops console", "http://ops.example.com", "http://ops.example.com", "true"},
		{"unknown origin", "http://intruder.example", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := corsRequest(t, origins, http.MethodGet, tt.origin, nil)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.wantOrigin, got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("expected Access-Control-Allow-Credentials %q, got %q", tt.wantCredentials, got)
			}
		})
	}
}

func TestCORSExposesRequestID(t *testing.T) {
	rec := corsRequest(t, []string{"http://wallboard.local"}, http.MethodGet, "http://wallboard.local", nil)

	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-Id" {
		t.Errorf("expected X-Request-Id to be exposed, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	origins := []string{"http://ops.example.com"}

	tests := []struct {
		name      string
		method    string
		wantAllow bool
	}{
		{"query agents", http.MethodPost, true},
		{"truncate journal", http.MethodDelete, true},
		{"unsupported method", http.MethodPut, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := corsRequest(t, origins, http.MethodOptions, "http://ops.example.com", map[string]string{
				"Access-Control-Request-Method":  tt.method,
				"Access-Control-Request-Headers": "Authorization, Content-Type",
			})

			got := rec.Header().Get("Access-Control-Allow-Methods")
			if tt.wantAllow && got != tt.method {
				t.Errorf("expected %s to be allowed, got %q", tt.method, got)
			}
			if !tt.wantAllow && got != "" {
				t.Errorf("expected %s to be refused, got %q", tt.method, got)
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	rec := corsRequest(t, []string{"*"}, http.MethodGet, "http://anywhere.example", nil)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("expected no credentials header, got %q", got)
	}
}
