package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// AuditPublisher mirrors committed audit events onto Kafka for downstream
// reporting consumers. Postgres stays the system of record; a failed publish
// is logged and dropped, never surfaced to the caller.
type AuditPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditPublisher constructs a Kafka-backed audit mirror.
func NewAuditPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditPublisher {
	return &AuditPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// PublishAuditEvent enqueues one audit event onto the auth.audit topic.
// Failures are logged and dropped.
func (p *AuditPublisher) PublishAuditEvent(ctx context.Context, event domain.AuditEvent) {
	payload := struct {
		UserID    *string   `json:"user_id,omitempty"`
		SessionID *string   `json:"session_id,omitempty"`
		Action    string    `json:"action"`
		Code      int       `json:"code"`
		IP        string    `json:"ip,omitempty"`
		At        time.Time `json:"at"`
	}{
		UserID:    event.UserID,
		SessionID: event.SessionID,
		Action:    event.Action,
		Code:      event.Code,
		IP:        event.IP,
		At:        event.At.UTC(),
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}

	envelope := eventEnvelope{
		EventID:   event.ID,
		EventType: "auth.audit",
		UserID:    userID,
		Timestamp: event.At.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("marshal audit envelope", zap.Error(err), zap.String("event_id", event.ID))
		return
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName("auth.audit"),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
	case <-ctx.Done():
		p.logger.Warn("dropped audit event, context cancelled", zap.String("event_id", event.ID))
	}
}

var _ port.AuditPublisher = (*AuditPublisher)(nil)
