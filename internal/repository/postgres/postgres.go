package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/repository"
)

const portalSchema = "portal"

// Executor abstracts the pgx query surface shared by pools and transactions.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and implements port.UnitOfWork.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Repos returns a pool-bound repository set for single-statement operations.
func (s *Store) Repos() port.RepositorySet {
	return newRepositorySet(s.pool)
}

// Do runs fn inside a transaction. All repositories handed to fn are bound to
// that transaction; fn's error rolls everything back, including audit rows.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos port.RepositorySet) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, newRepositorySet(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func newRepositorySet(exec Executor) port.RepositorySet {
	return port.RepositorySet{
		Users:       NewUserRepository(exec),
		Credentials: NewCredentialRepository(exec),
		Tokens:      NewTokenRepository(exec),
		Sessions:    NewSessionRepository(exec),
		Audit:       NewAuditRepository(exec),
	}
}

// translateError maps driver-level failures onto repository sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}
