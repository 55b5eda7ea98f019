package port

import (
	"context"
	"time"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// TokenRepository manages one-time code records.
type TokenRepository interface {
	Create(ctx context.Context, token domain.Token) error
	// LatestPendingForUpdate returns the most recently issued unconsumed,
	// unexpired token of the given kind for the user, locking the row so
	// concurrent verifications cannot both consume it.
	LatestPendingForUpdate(ctx context.Context, userID string, kind domain.TokenKind, now time.Time) (*domain.Token, error)
	Consume(ctx context.Context, id string) error
}
