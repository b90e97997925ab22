package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"appforge/platform/internal/audit"
)

type mockAuditRecorder struct {
	mu      sync.Mutex
	userIDs []string
	actions []string
}

func (m *mockAuditRecorder) Record(ctx context.Context, userID, action string, metadata map[string]any, req audit.RequestInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userIDs = append(m.userIDs, userID)
	m.actions = append(m.actions, action)
}

func (m *mockAuditRecorder) RecordAsync(ctx context.Context, userID, action string, metadata map[string]any, req audit.RequestInfo) {
	m.Record(ctx, userID, action, metadata, req)
}

func (m *mockAuditRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

func auditedRequest(h http.Handler, method, path, userID string) {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req = req.WithContext(WithIdentity(req.Context(), userID, ""))
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestAudit_RecordsAuthenticatedMutation(t *testing.T) {
	rec := &mockAuditRecorder{}
	h := Audit(rec, nil)(okHandler())

	auditedRequest(h, http.MethodPost, "/some/action", "user-1")

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("mutation not audited after 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.userIDs[0] != "user-1" || rec.actions[0] != "http_request" {
		t.Errorf("recorded %q %q, want user-1 http_request", rec.userIDs[0], rec.actions[0])
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	rec := &mockAuditRecorder{}
	h := Audit(rec, nil)(okHandler())

	auditedRequest(h, http.MethodGet, "/some/list", "user-1")

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("GET audited %d times, want 0", rec.count())
	}
}

func TestAudit_SkipsAnonymous(t *testing.T) {
	rec := &mockAuditRecorder{}
	h := Audit(rec, nil)(okHandler())

	auditedRequest(h, http.MethodPost, "/some/action", "")

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("anonymous request audited %d times, want 0", rec.count())
	}
}

func TestAudit_SkipsConfiguredPaths(t *testing.T) {
	rec := &mockAuditRecorder{}
	h := Audit(rec, map[string]bool{"/monitoring/log-error": true})(okHandler())

	auditedRequest(h, http.MethodPost, "/monitoring/log-error", "user-1")

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("skipped path audited %d times, want 0", rec.count())
	}
}
