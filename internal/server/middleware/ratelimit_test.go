package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"appforge/platform/internal/audit"
)

type mockViolationRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockViolationRecorder) Record(ctx context.Context, userID, action string, metadata map[string]any, req audit.RequestInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func (m *mockViolationRecorder) RecordAsync(ctx context.Context, userID, action string, metadata map[string]any, req audit.RequestInfo) {
	m.Record(ctx, userID, action, metadata, req)
}

func (m *mockViolationRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/monitoring/log-error", nil)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(WithIdentity(req.Context(), userID, ""))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(5, nil, false, nil)
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		if w := doRequest(h, "203.0.113.1:1000", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
	w := doRequest(h, "203.0.113.1:1000", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal 429 body: %v", err)
	}
	if resp["detail"] == "" || resp["detail"] == nil {
		t.Error("429 body has no detail")
	}
	if _, ok := resp["retry_after_seconds"]; !ok {
		t.Error("429 body has no retry_after_seconds")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(2, nil, false, nil)
	h := rl.Middleware(okHandler())

	doRequest(h, "203.0.113.1:1000", "")
	doRequest(h, "203.0.113.1:1000", "")
	if w := doRequest(h, "203.0.113.1:1000", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first key not limited: status = %d", w.Code)
	}
	if w := doRequest(h, "203.0.113.2:1000", ""); w.Code != http.StatusOK {
		t.Errorf("second IP limited by first: status = %d", w.Code)
	}
}

func TestRateLimiter_UserKeyIndependentOfIP(t *testing.T) {
	rl := NewRateLimiter(2, nil, false, nil)
	h := rl.Middleware(okHandler())

	// Exhaust the IP key.
	doRequest(h, "203.0.113.1:1000", "")
	doRequest(h, "203.0.113.1:1000", "")
	if w := doRequest(h, "203.0.113.1:1000", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("IP key not limited: status = %d", w.Code)
	}
	// Same IP, authenticated: keyed by user id, has its own budget.
	if w := doRequest(h, "203.0.113.1:1000", "user-1"); w.Code != http.StatusOK {
		t.Errorf("authenticated request limited by IP key: status = %d", w.Code)
	}
}

func TestRateLimiter_AuditAllRecordsViolation(t *testing.T) {
	rec := &mockViolationRecorder{}
	rl := NewRateLimiter(1, rec, true, nil)
	h := rl.Middleware(okHandler())

	doRequest(h, "203.0.113.1:1000", "")
	if w := doRequest(h, "203.0.113.1:1000", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("violation not audited after 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRateLimiter_SkipsConfiguredPaths(t *testing.T) {
	rl := NewRateLimiter(1, nil, false, map[string]bool{"/health": true})
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("health probe %d limited: status = %d", i+1, w.Code)
		}
	}
}

func TestRateLimiter_NoRecorderDoesNotPanic(t *testing.T) {
	rl := NewRateLimiter(1, nil, true, nil)
	h := rl.Middleware(okHandler())

	doRequest(h, "203.0.113.1:1000", "")
	if w := doRequest(h, "203.0.113.1:1000", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}
