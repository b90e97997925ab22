package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"appforge/platform/internal/config"
	"appforge/platform/internal/report/domain"
)

type mockReportRepo struct {
	mu      sync.Mutex
	created []*domain.AppError
}

func (m *mockReportRepo) GetByID(ctx context.Context, id string) (*domain.AppError, error) {
	return nil, nil
}

func (m *mockReportRepo) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AppError, error) {
	return nil, nil
}

func (m *mockReportRepo) Create(ctx context.Context, e *domain.AppError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, e)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "development",
		FrontendURL:          "http://localhost:3000",
		RateLimitPerMinute:   100,
		ErrorReportPerMinute: 20,
	}
}

func newTestHandler() http.Handler {
	return New(testConfig(), Deps{ReportRepo: &mockReportRepo{}})
}

func TestRouter_HealthEndpoints(t *testing.T) {
	h := newTestHandler()

	for _, path := range []string{"/", "/health", "/ready", "/live", "/monitoring/health"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_LogError(t *testing.T) {
	repo := &mockReportRepo{}
	h := New(testConfig(), Deps{ReportRepo: repo})

	req := httptest.NewRequest(http.MethodPost, "/monitoring/log-error", strings.NewReader(`{"message":"boom"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.created) != 1 {
		t.Fatalf("stored %d reports, want 1", len(repo.created))
	}
}

func TestRouter_ErrorIntakeRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorReportPerMinute = 2
	h := New(cfg, Deps{ReportRepo: &mockReportRepo{}})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/monitoring/log-error", strings.NewReader(`{"message":"boom"}`))
		req.RemoteAddr = "203.0.113.1:1000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third report: status = %d, want %d", last.Code, http.StatusTooManyRequests)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	h := newTestHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRouter_PanicRecovered(t *testing.T) {
	// A nil report repo makes the handler panic on store; Recover must turn
	// that into a 500, not kill the test process.
	h := New(testConfig(), Deps{ReportRepo: nil})

	req := httptest.NewRequest(http.MethodPost, "/monitoring/log-error", strings.NewReader(`{"message":"boom"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["detail"] != "Internal server error" {
		t.Errorf("detail = %v", resp["detail"])
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodOptions, "/monitoring/log-error", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the frontend origin", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want true", got)
	}
}
