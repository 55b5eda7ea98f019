package port

import (
	"context"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// CredentialRepository exposes persistence behavior for credentials.
// The ForUpdate variants take a row lock so concurrent logins for the same
// user serialize on the attempt counter and lockout flag.
type CredentialRepository interface {
	Create(ctx context.Context, credential domain.Credential) error
	GetByHandle(ctx context.Context, handle string) (*domain.Credential, error)
	GetByHandleForUpdate(ctx context.Context, handle string) (*domain.Credential, error)
	GetByUserIDForUpdate(ctx context.Context, userID string) (*domain.Credential, error)
	Update(ctx context.Context, credential domain.Credential) error
}
