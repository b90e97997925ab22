// Package audit records immutable audit events (who did what, when, from where).
// Recording is always best-effort: a failed write is logged and never surfaced
// to the code path that triggered it.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"appforge/platform/internal/audit/domain"
	auditrepo "appforge/platform/internal/audit/repository"
)

// recordTimeout bounds a single async audit write so request handlers are never blocked on it.
const recordTimeout = 5 * time.Second

// RequestInfo carries request context captured on every audit entry.
type RequestInfo struct {
	IP        string
	UserAgent string
	Path      string
	Method    string
}

// Recorder writes audit events. Implementations must be best-effort: failures
// are logged and do not affect the caller.
type Recorder interface {
	Record(ctx context.Context, userID, action string, metadata map[string]any, req RequestInfo)
	RecordAsync(ctx context.Context, userID, action string, metadata map[string]any, req RequestInfo)
}

// Logger implements Recorder using the audit repository.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns a Recorder that persists to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// Record writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, userID, action string, metadata map[string]any, req RequestInfo) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:            uuid.New().String(),
		UserID:        userID,
		Action:        action,
		Metadata:      metadata,
		IPAddress:     req.IP,
		UserAgent:     req.UserAgent,
		RequestPath:   req.Path,
		RequestMethod: req.Method,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to record %s: %v", action, err)
	}
}

// RecordAsync writes the entry in a goroutine so the caller is not blocked.
// The goroutine uses context.Background() with recordTimeout so request
// cancellation does not abort an in-flight write.
func (l *Logger) RecordAsync(_ context.Context, userID, action string, metadata map[string]any, req RequestInfo) {
	if l == nil || l.repo == nil {
		return
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		l.Record(writeCtx, userID, action, metadata, req)
	}()
}
