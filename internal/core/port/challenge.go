package port

import (
	"context"
	"time"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// LoginChallengeStore holds the pending-authentication value carried between
// the password step and the second-factor step. Entries expire with the
// second-factor token they accompany.
type LoginChallengeStore interface {
	Put(ctx context.Context, challenge domain.LoginChallenge, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.LoginChallenge, error)
	Delete(ctx context.Context, id string) error
}
