package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type mockHealthChecker struct {
	ready   bool
	healthy bool
}

func (m *mockHealthChecker) IsReady() bool   { return m.ready }
func (m *mockHealthChecker) IsHealthy() bool { return m.healthy }

func newTestServer(checker *mockHealthChecker, shuttingDown bool) *Server {
	var flag atomic.Bool
	flag.Store(shuttingDown)
	return NewServer(ServerConfig{Addr: "127.0.0.1:0"}, checker, nil, &flag)
}

func TestServer_Ready(t *testing.T) {
	tests := []struct {
		name           string
		ready          bool
		shuttingDown   bool
		expectedStatus int
		expectedBody   string
	}{
		{"ready returns 200", true, false, http.StatusOK, "ready"},
		{"not ready returns 503", false, false, http.StatusServiceUnavailable, "not_ready"},
		{"shutting down returns 503", true, true, http.StatusServiceUnavailable, "shutting_down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockHealthChecker{ready: tt.ready, healthy: true}, tt.shuttingDown)

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %q", tt.expectedBody, resp["status"])
			}
		})
	}
}

func TestServer_Live(t *testing.T) {
	tests := []struct {
		name           string
		healthy        bool
		shuttingDown   bool
		expectedStatus int
		expectedBody   string
	}{
		{"healthy returns 200", true, false, http.StatusOK, "healthy"},
		{"unhealthy returns 503", false, false, http.StatusServiceUnavailable, "unhealthy"},
		{"shutting down returns 503", true, true, http.StatusServiceUnavailable, "shutting_down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockHealthChecker{ready: true, healthy: tt.healthy}, tt.shuttingDown)

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health/live", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %q", tt.expectedBody, resp["status"])
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name           string
		ready          bool
		healthy        bool
		shuttingDown   bool
		expectedStatus int
		expectedBody   string
	}{
		{"all ok", true, true, false, http.StatusOK, "ok"},
		{"not ready is degraded", false, true, false, http.StatusServiceUnavailable, "degraded"},
		{"unhealthy is degraded", true, false, false, http.StatusServiceUnavailable, "degraded"},
		{"shutting down", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockHealthChecker{ready: tt.ready, healthy: tt.healthy}, tt.shuttingDown)

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp map[string]any
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %v", tt.expectedBody, resp["status"])
			}
			if resp["shuttingDown"] != tt.shuttingDown {
				t.Errorf("expected shuttingDown=%v, got %v", tt.shuttingDown, resp["shuttingDown"])
			}
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := newTestServer(&mockHealthChecker{ready: true, healthy: true}, false)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_StartBindFailure(t *testing.T) {
	s := NewServer(ServerConfig{Addr: "127.0.0.1:99999"}, &mockHealthChecker{}, nil, nil)
	if err := s.Start(); err == nil {
		t.Fatal("expected bind error")
	}
}
