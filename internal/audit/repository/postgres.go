package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"appforge/platform/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, action, metadata, ip_address, user_agent, request_path, request_method, created_at
		FROM audit_logs WHERE id = $1`, id)
	a, err := scanAuditLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListByUser returns audit logs for the given user, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action, metadata, ip_address, user_agent, request_path, request_method, created_at
		FROM audit_logs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The entry must have ID set; Metadata may be nil.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, metadata, ip_address, user_agent, request_path, request_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, nullIfEmpty(a.UserID), a.Action, metaJSON,
		nullIfEmpty(a.IPAddress), nullIfEmpty(a.UserAgent),
		nullIfEmpty(a.RequestPath), nullIfEmpty(a.RequestMethod), a.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var (
		a        domain.AuditLog
		userID   sql.NullString
		ip       sql.NullString
		ua       sql.NullString
		path     sql.NullString
		method   sql.NullString
		metaJSON []byte
	)
	if err := row.Scan(&a.ID, &userID, &a.Action, &metaJSON, &ip, &ua, &path, &method, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.UserID = userID.String
	a.IPAddress = ip.String
	a.UserAgent = ua.String
	a.RequestPath = path.String
	a.RequestMethod = method.String
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
