package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
)

// AuditRepository implements port.AuditRepository using PostgreSQL. The
// table is append-only; no update or delete statement exists here.
type AuditRepository struct {
	exec    Executor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit repository.
func NewAuditRepository(exec Executor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one audit event row.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	var userID, sessionID any
	if event.UserID != nil {
		userID = *event.UserID
	}
	if event.SessionID != nil {
		sessionID = *event.SessionID
	}

	stmt, args, err := r.builder.Insert(portalSchema+".audit_events").
		Columns("id", "user_id", "session_id", "action", "code", "ip", "at").
		Values(event.ID, userID, sessionID, event.Action, event.Code, event.IP, event.At).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ReportingRepository serves the admin projections via outer joins.
type ReportingRepository struct {
	exec    Executor
	builder squirrel.StatementBuilderType
}

// NewReportingRepository wires the read-only reporting queries.
func NewReportingRepository(exec Executor) *ReportingRepository {
	return &ReportingRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListHistory returns the newest audit rows joined with the acting
// credential's handle.
func (r *ReportingRepository) ListHistory(ctx context.Context, limit int) ([]port.HistoryEntry, error) {
	query := r.builder.
		Select("a.id", "a.user_id", "a.session_id", "a.action", "a.code", "a.ip", "a.at", "c.handle").
		From(portalSchema + ".audit_events a").
		LeftJoin(portalSchema + ".credentials c ON c.user_id = a.user_id").
		OrderBy("a.at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []port.HistoryEntry
	for rows.Next() {
		var (
			entry     port.HistoryEntry
			userID    sql.NullString
			sessionID sql.NullString
			handle    sql.NullString
		)
		if err := rows.Scan(
			&entry.Event.ID,
			&userID,
			&sessionID,
			&entry.Event.Action,
			&entry.Event.Code,
			&entry.Event.IP,
			&entry.Event.At,
			&handle,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if userID.Valid {
			val := userID.String
			entry.Event.UserID = &val
		}
		if sessionID.Valid {
			val := sessionID.String
			entry.Event.SessionID = &val
		}
		if handle.Valid {
			entry.Handle = handle.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// ListUsers returns every user joined with its credential.
func (r *ReportingRepository) ListUsers(ctx context.Context) ([]port.AdminUser, error) {
	stmt, args, err := r.builder.
		Select(
			"u.id", "u.national_id", "u.first_names", "u.last_names", "u.email", "u.phone", "u.created_at",
			"c.handle", "c.role", "c.validated", "c.active", "c.locked", "c.remaining_attempts",
		).
		From(portalSchema + ".users u").
		Join(portalSchema + ".credentials c ON c.user_id = u.id").
		OrderBy("u.created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []port.AdminUser
	for rows.Next() {
		var entry port.AdminUser
		if err := rows.Scan(
			&entry.User.ID,
			&entry.User.NationalID,
			&entry.User.FirstNames,
			&entry.User.LastNames,
			&entry.User.Email,
			&entry.User.Phone,
			&entry.User.CreatedAt,
			&entry.Credential.Handle,
			&entry.Credential.Role,
			&entry.Credential.Validated,
			&entry.Credential.Active,
			&entry.Credential.Locked,
			&entry.Credential.RemainingAttempts,
		); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		entry.Credential.UserID = entry.User.ID
		users = append(users, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
