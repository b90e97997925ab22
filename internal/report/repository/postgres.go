package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"appforge/platform/internal/report/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an app error repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the app error for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AppError, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, level, message, stack, user_id, request_path, request_method, environment, extra, created_at
		FROM app_errors WHERE id = $1`, id)
	e, err := scanAppError(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListRecent returns stored app errors, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AppError, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, level, message, stack, user_id, request_path, request_method, environment, extra, created_at
		FROM app_errors
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AppError
	for rows.Next() {
		e, err := scanAppError(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create persists the app error. The entry must have ID set; Extra may be nil.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.AppError) error {
	extra := e.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO app_errors (id, level, message, stack, user_id, request_path, request_method, environment, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Level, e.Message, nullIfEmpty(e.Stack), nullIfEmpty(e.UserID),
		nullIfEmpty(e.RequestPath), nullIfEmpty(e.RequestMethod),
		nullIfEmpty(e.Environment), extraJSON, e.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppError(row rowScanner) (*domain.AppError, error) {
	var (
		e         domain.AppError
		stack     sql.NullString
		userID    sql.NullString
		path      sql.NullString
		method    sql.NullString
		env       sql.NullString
		extraJSON []byte
	)
	if err := row.Scan(&e.ID, &e.Level, &e.Message, &stack, &userID, &path, &method, &env, &extraJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Stack = stack.String
	e.UserID = userID.String
	e.RequestPath = path.String
	e.RequestMethod = method.String
	e.Environment = env.String
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &e.Extra); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
