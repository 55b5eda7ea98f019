package port

import (
	"context"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for identity records.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Count(ctx context.Context) (int, error)
}
