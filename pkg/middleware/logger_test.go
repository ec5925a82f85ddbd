package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func serveLogged(t *testing.T, handler http.HandlerFunc, path string) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	h := chimw.RequestID(Logger(zerolog.New(&buf))(handler))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLoggerLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{"ok", http.StatusOK, "agents", "info"},
		{"accepted", http.StatusAccepted, `{"queued":2}`, "info"},
		{"not found", http.StatusNotFound, "agent not found", "warn"},
		{"bad request", http.StatusBadRequest, "invalid limit", "warn"},
		{"server error", http.StatusInternalServerError, "journal unavailable", "error"},
		{"bad gateway", http.StatusBadGateway, "", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "/api/agents")

			if entry["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, entry["level"])
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("expected status %d, got %v", tt.status, entry["status"])
			}
			if entry["bytes"] != float64(len(tt.body)) {
				t.Errorf("expected %d bytes, got %v", len(tt.body), entry["bytes"])
			}
			if entry["method"] != "GET" || entry["path"] != "/api/agents" {
				t.Errorf("unexpected request fields %v %v", entry["method"], entry["path"])
			}
			if entry["message"] != "request completed" {
				t.Errorf("expected message 'request completed', got %v", entry["message"])
			}
		})
	}
}

func TestLoggerDefaultsToOK(t *testing.T) {
	// The handler never writes a header or body.
	entry := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {}, "/health")

	if entry["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", entry["status"])
	}
	if entry["level"] != "info" {
		t.Errorf("expected level info, got %v", entry["level"])
	}
	if entry["bytes"] != float64(0) {
		t.Errorf("expected 0 bytes, got %v", entry["bytes"])
	}
}

func TestLoggerIncludesRequestID(t *testing.T) {
	var idSeen string
	entry := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		idSeen = chimw.GetReqID(r.Context())
	}, "/metrics")

	if idSeen == "" {
		t.Fatal("expected RequestID middleware to set an id")
	}
	if entry["request_id"] != idSeen {
		t.Errorf("expected request_id %s, got %v", idSeen, entry["request_id"])
	}
	if _, ok := entry["duration"]; !ok {
		t.Error("expected duration field")
	}
}
