package repository

import (
	"context"

	"appforge/platform/internal/report/domain"
)

// Repository stores and retrieves application error reports.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AppError, error)
	ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AppError, error)
	Create(ctx context.Context, e *domain.AppError) error
}
