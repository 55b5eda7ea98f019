package port

import (
	"context"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// AuditRepository appends entries to the audit trail. The trail is
// append-only; there is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}

// HistoryEntry is the admin projection of one audit row joined with the
// acting credential's handle.
type HistoryEntry struct {
	Event  domain.AuditEvent
	Handle string
}

// AdminUser is the admin projection of a user joined with its credential.
type AdminUser struct {
	User       domain.User
	Credential domain.Credential
}

// ReportingRepository serves the read-only admin projections. Pure queries,
// no writes.
type ReportingRepository interface {
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	ListUsers(ctx context.Context) ([]AdminUser, error)
}
