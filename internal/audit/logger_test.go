package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"appforge/platform/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) getEntries() []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

func TestLogger_Record_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo)

	logger.Record(context.Background(), "user-1", "frontend_error_logged",
		map[string]any{"message": "boom"},
		RequestInfo{IP: "192.168.1.1", UserAgent: "test-agent", Path: "/monitoring/log-error", Method: "POST"})

	entries := repo.getEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.UserID != "user-1" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "user-1")
	}
	if entry.Action != "frontend_error_logged" {
		t.Errorf("action = %q, want %q", entry.Action, "frontend_error_logged")
	}
	if entry.Metadata["message"] != "boom" {
		t.Errorf("metadata message = %v, want %q", entry.Metadata["message"], "boom")
	}
	if entry.IPAddress != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IPAddress, "192.168.1.1")
	}
	if entry.RequestPath != "/monitoring/log-error" {
		t.Errorf("request_path = %q", entry.RequestPath)
	}
	if entry.RequestMethod != "POST" {
		t.Errorf("request_method = %q", entry.RequestMethod)
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_Record_RepoErrorSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo)

	// Must not panic or surface the error.
	logger.Record(context.Background(), "", "api_access", nil, RequestInfo{})

	if len(repo.getEntries()) != 0 {
		t.Error("no entries should be recorded on repo error")
	}
}

func TestLogger_Record_NilRepo(t *testing.T) {
	logger := NewLogger(nil)
	logger.Record(context.Background(), "user-1", "noop", nil, RequestInfo{})
}

func TestLogger_RecordAsync(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo)

	logger.RecordAsync(context.Background(), "user-2", "rate_limit_exceeded",
		map[string]any{"path": "/monitoring/log-error"}, RequestInfo{IP: "10.0.0.1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(repo.getEntries()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	entries := repo.getEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after async record, got %d", len(entries))
	}
	if entries[0].Action != "rate_limit_exceeded" {
		t.Errorf("action = %q", entries[0].Action)
	}
}

func TestLogger_RecordAsync_CanceledCallerContext(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The async write uses its own context, so caller cancellation must not drop it.
	logger.RecordAsync(ctx, "user-3", "api_access", nil, RequestInfo{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(repo.getEntries()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("async record with canceled caller context never landed")
}
