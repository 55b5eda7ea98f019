package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/repository"
)

// CredentialRepository implements port.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	exec    Executor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository wires a PostgreSQL-backed credential repository.
func NewCredentialRepository(exec Executor) *CredentialRepository {
	return &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new credential row.
func (r *CredentialRepository) Create(ctx context.Context, credential domain.Credential) error {
	stmt, args, err := r.builder.Insert(portalSchema+".credentials").
		Columns(
			"user_id",
			"handle",
			"password_hash",
			"role",
			"validated",
			"active",
			"locked",
			"remaining_attempts",
			"created_at",
		).
		Values(
			credential.UserID,
			credential.Handle,
			credential.PasswordHash,
			credential.Role,
			credential.Validated,
			credential.Active,
			credential.Locked,
			credential.RemainingAttempts,
			credential.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if translated := translateError(err); errors.Is(translated, repository.ErrDuplicate) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetByHandle retrieves a credential by its unique login handle.
func (r *CredentialRepository) GetByHandle(ctx context.Context, handle string) (*domain.Credential, error) {
	return r.getOne(ctx, squirrel.Eq{"handle": handle}, false)
}

// GetByHandleForUpdate retrieves a credential by handle while holding a row
// lock for the remainder of the transaction.
func (r *CredentialRepository) GetByHandleForUpdate(ctx context.Context, handle string) (*domain.Credential, error) {
	return r.getOne(ctx, squirrel.Eq{"handle": handle}, true)
}

// GetByUserIDForUpdate retrieves a credential by owner id under a row lock.
func (r *CredentialRepository) GetByUserIDForUpdate(ctx context.Context, userID string) (*domain.Credential, error) {
	return r.getOne(ctx, squirrel.Eq{"user_id": userID}, true)
}

// Update persists the mutable credential fields.
func (r *CredentialRepository) Update(ctx context.Context, credential domain.Credential) error {
	stmt, args, err := r.builder.Update(portalSchema+".credentials").
		Set("password_hash", credential.PasswordHash).
		Set("validated", credential.Validated).
		Set("active", credential.Active).
		Set("locked", credential.Locked).
		Set("remaining_attempts", credential.RemainingAttempts).
		Where(squirrel.Eq{"user_id": credential.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update credential sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) getOne(ctx context.Context, where squirrel.Eq, forUpdate bool) (*domain.Credential, error) {
	query := r.builder.
		Select(
			"user_id",
			"handle",
			"password_hash",
			"role",
			"validated",
			"active",
			"locked",
			"remaining_attempts",
			"created_at",
		).
		From(portalSchema + ".credentials").
		Where(where)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential sql: %w", err)
	}

	var credential domain.Credential
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&credential.UserID,
		&credential.Handle,
		&credential.PasswordHash,
		&credential.Role,
		&credential.Validated,
		&credential.Active,
		&credential.Locked,
		&credential.RemainingAttempts,
		&credential.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return &credential, nil
}
