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

// SessionRepository implements port.SessionRepository using PostgreSQL.
type SessionRepository struct {
	exec    Executor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository wires a PostgreSQL-backed session repository.
func NewSessionRepository(exec Executor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert(portalSchema+".sessions").
		Columns("id", "user_id", "status", "created_at", "expires_at").
		Values(session.ID, session.UserID, session.Status, session.CreatedAt, session.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "status", "created_at", "expires_at").
		From(portalSchema + ".sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var session domain.Session
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&session.ID, &session.UserID, &session.Status, &session.CreatedAt, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}

// ListActiveByUser returns every session with status ACTIVE for the user.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "status", "created_at", "expires_at").
		From(portalSchema + ".sessions").
		Where(squirrel.Eq{"user_id": userID, "status": domain.SessionStatusActive}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.Status, &session.CreatedAt, &session.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Expire transitions an ACTIVE session to EXPIRED. A session that is absent
// or already EXPIRED yields ErrNotFound, so the transition fires exactly once.
func (r *SessionRepository) Expire(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(portalSchema+".sessions").
		Set("status", domain.SessionStatusExpired).
		Where(squirrel.Eq{"id": id, "status": domain.SessionStatusActive}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build expire session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
