package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	exec    Executor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository wires a PostgreSQL-backed token repository.
func NewTokenRepository(exec Executor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new token row.
func (r *TokenRepository) Create(ctx context.Context, token domain.Token) error {
	stmt, args, err := r.builder.Insert(portalSchema+".tokens").
		Columns("id", "user_id", "kind", "code_hash", "issued_at", "expires_at", "consumed").
		Values(token.ID, token.UserID, token.Kind, token.CodeHash, token.IssuedAt, token.ExpiresAt, token.Consumed).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// LatestPendingForUpdate returns the newest unconsumed, unexpired token of
// the given kind for the user. The row lock serializes concurrent
// consumption attempts; older still-valid tokens stay unreachable.
func (r *TokenRepository) LatestPendingForUpdate(ctx context.Context, userID string, kind domain.TokenKind, now time.Time) (*domain.Token, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "kind", "code_hash", "issued_at", "expires_at", "consumed").
		From(portalSchema + ".tokens").
		Where(squirrel.Eq{"user_id": userID, "kind": kind, "consumed": false}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("issued_at DESC").
		Limit(1).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var token domain.Token
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Kind,
		&token.CodeHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Consumed,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return &token, nil
}

// Consume marks the token as used. Consumed tokens are kept, never deleted.
func (r *TokenRepository) Consume(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(portalSchema+".tokens").
		Set("consumed", true).
		Where(squirrel.Eq{"id": id, "consumed": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
