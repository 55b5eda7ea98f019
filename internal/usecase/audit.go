package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
)

// auditTrail collects the audit rows one operation writes so the mirror
// publisher only sees them after the surrounding transaction commits. Rows a
// failed commit rolls back must never reach the mirror.
type auditTrail struct {
	events []domain.AuditEvent
}

// append writes one audit row through the transaction-bound repository and
// records it for publication. The row is part of the surrounding
// transaction: a failed commit takes the audit entry down with the operation
// that produced it.
func (t *auditTrail) append(ctx context.Context, repos port.RepositorySet, action domain.AuditAction, userID, sessionID, ip string, at time.Time) error {
	event := domain.NewAuditEvent(uuid.NewString(), action, userID, sessionID, ip, at)
	if err := repos.Audit.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event %q: %w", action.Name, err)
	}
	t.events = append(t.events, event)
	return nil
}

// publish mirrors the collected events. Callers invoke it only once the
// transaction that wrote the rows has committed.
func (t *auditTrail) publish(ctx context.Context, publisher port.AuditPublisher) {
	if publisher == nil {
		return
	}
	for _, event := range t.events {
		publisher.PublishAuditEvent(ctx, event)
	}
}
