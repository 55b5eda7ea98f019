package port

import (
	"context"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// SessionRepository exposes persistence behavior for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error)
	// Expire transitions an ACTIVE session to EXPIRED; absent or already
	// expired sessions report ErrNotFound.
	Expire(ctx context.Context, id string) error
}
