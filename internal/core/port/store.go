package port

import "context"

// RepositorySet bundles the repositories participating in one logical
// operation. Inside UnitOfWork.Do all members are bound to the same
// transaction, so multi-row read-modify-write sequences (lockout accounting,
// session sweeps, token consumption) commit or roll back as a whole.
type RepositorySet struct {
	Users       UserRepository
	Credentials CredentialRepository
	Tokens      TokenRepository
	Sessions    SessionRepository
	Audit       AuditRepository
}

// UnitOfWork runs fn inside a store transaction. A non-nil error from fn
// rolls the transaction back; otherwise it commits.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos RepositorySet) error) error
}
