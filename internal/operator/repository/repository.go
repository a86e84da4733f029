package repository

import (
	"context"

	"cheque-custody/backend/internal/operator/domain"
)

// Repository defines persistence for operators.
// Implementations return (nil, nil) when an operator does not exist.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
	// Create fails with a Conflict error when the email is taken.
	Create(ctx context.Context, o *domain.Operator) error
	List(ctx context.Context) ([]*domain.Operator, error)
}
