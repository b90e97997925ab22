package domain

import "time"

// AuditLog is an immutable audit event: who did what, when, and from where.
type AuditLog struct {
	ID            string
	UserID        string // empty for system/anonymous actions
	Action        string // e.g. "frontend_error_logged", "rate_limit_exceeded"
	Metadata      map[string]any
	IPAddress     string
	UserAgent     string
	RequestPath   string
	RequestMethod string
	CreatedAt     time.Time
}
