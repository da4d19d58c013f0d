package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/archon-research/oracle-relay/internal/testutil"
)

type fixedStatus int

func (f fixedStatus) RegisteredOracles() int { return int(f) }

type fixedStats struct{ total, failed int }

func (f fixedStats) Counts() (int, int) { return f.total, f.failed }

func newAPIServer(h *Handler) http.Handler {
	return NewServer(ServerConfig{Logger: testutil.DiscardLogger()}, &mockHealthChecker{}, h, nil).Handler()
}

func TestHandler_API(t *testing.T) {
	srv := newAPIServer(NewHandler(fixedStatus(20), nil, testutil.DiscardLogger()))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["message"] != "An API for use with your Dapp!" {
		t.Errorf("unexpected message %q", resp["message"])
	}
}

func TestHandler_APIRejectsPost(t *testing.T) {
	srv := newAPIServer(NewHandler(fixedStatus(0), nil, nil))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("POST", "/api", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandler_Status(t *testing.T) {
	tests := []struct {
		name       string
		stats      *fixedStats
		wantCounts bool
	}{
		{"with outcome stats", &fixedStats{total: 45, failed: 3}, true},
		{"without outcome stats", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h *Handler
			if tt.stats != nil {
				h = NewHandler(fixedStatus(20), *tt.stats, nil)
			} else {
				h = NewHandler(fixedStatus(20), nil, nil)
			}
			srv := newAPIServer(h)

			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var resp StatusResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.RegisteredOracles != 20 {
				t.Errorf("registeredOracles = %d, want 20", resp.RegisteredOracles)
			}
			if tt.wantCounts {
				if resp.Responses == nil || *resp.Responses != 45 {
					t.Errorf("responses = %v, want 45", resp.Responses)
				}
				if resp.FailedResponses == nil || *resp.FailedResponses != 3 {
					t.Errorf("failedResponses = %v, want 3", resp.FailedResponses)
				}
			} else if resp.Responses != nil {
				t.Errorf("expected no counts, got %d", *resp.Responses)
			}
		})
	}
}
