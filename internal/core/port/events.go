package port

import (
	"context"

	"github.com/quindo/portal-auth/internal/core/domain"
)

// AuditPublisher mirrors audit events to external reporting tooling. The
// Postgres trail is authoritative; publishing is fire-and-forget and a
// failure never aborts the operation that produced the event.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event domain.AuditEvent)
}
