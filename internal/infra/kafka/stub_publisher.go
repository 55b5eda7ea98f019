package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
)

// StubPublisher logs audit events instead of sending them to Kafka. Used
// when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly audit publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishAuditEvent logs the event at debug level.
func (p *StubPublisher) PublishAuditEvent(_ context.Context, event domain.AuditEvent) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("action", event.Action),
		zap.Int("code", event.Code),
		zap.Time("at", event.At),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", *event.UserID))
	}
	if event.SessionID != nil {
		fields = append(fields, zap.String("session_id", *event.SessionID))
	}
	p.logger.Debug("audit event", fields...)
}

var _ port.AuditPublisher = (*StubPublisher)(nil)
