// Package domain holds the application error report entity persisted by the collector.
package domain

import "time"

// Severity levels stored with an application error.
const (
	LevelError         = "error"
	LevelFrontendError = "frontend_error"
)

// AppError is one captured application error, either reported by a frontend
// client or recorded server-side from a request panic.
type AppError struct {
	ID            string
	Level         string
	Message       string
	Stack         string
	UserID        string
	RequestPath   string
	RequestMethod string
	Environment   string
	Extra         map[string]any
	CreatedAt     time.Time
}
