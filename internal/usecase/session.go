package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/infra/telemetry"
	"github.com/quindo/portal-auth/internal/repository"
)

// SessionService manages session lifecycle and the audit entries each
// transition produces.
type SessionService struct {
	store     port.UnitOfWork
	publisher port.AuditPublisher
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
	ttl       time.Duration
}

// NewSessionService constructs a SessionService.
func NewSessionService(store port.UnitOfWork, publisher port.AuditPublisher, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		ttl:       domain.SessionTTL,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches telemetry counters.
func (s *SessionService) WithMetrics(metrics *telemetry.Metrics) *SessionService {
	s.metrics = metrics
	return s
}

// WithTTL overrides the session lifetime.
func (s *SessionService) WithTTL(ttl time.Duration) *SessionService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Create persists a new ACTIVE session and audits the second-factor success
// in its own transaction.
func (s *SessionService) Create(ctx context.Context, userID, sessionID, origin string) error {
	trail := &auditTrail{}
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		return s.createWithin(ctx, repos, trail, userID, sessionID, origin)
	})
	if err != nil {
		return err
	}
	trail.publish(ctx, s.publisher)
	return nil
}

// createWithin inserts the session and its audit row using the supplied
// transaction-bound repositories. The caller publishes the trail after its
// transaction commits.
func (s *SessionService) createWithin(ctx context.Context, repos port.RepositorySet, trail *auditTrail, userID, sessionID, origin string) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("user id and session id are required")
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:        sessionID,
		UserID:    userID,
		Status:    domain.SessionStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := repos.Sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return trail.append(ctx, repos, domain.ActionSecondFactorSuccess, userID, sessionID, origin, now)
}

// Expire transitions one session to EXPIRED and audits the logout. A
// session that does not exist, or was already expired, is a silent no-op.
func (s *SessionService) Expire(ctx context.Context, sessionID, origin string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	trail := &auditTrail{}
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		session, err := repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := repos.Sessions.Expire(ctx, sessionID); err != nil {
			return err
		}
		return trail.append(ctx, repos, domain.ActionLogout, session.UserID, sessionID, origin, s.now().UTC())
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}

	trail.publish(ctx, s.publisher)
	s.metrics.SessionExpired("logout")
	return nil
}

// ExpireAllActive expires every ACTIVE session of the user in one
// transaction of its own.
func (s *SessionService) ExpireAllActive(ctx context.Context, userID, origin string) error {
	trail := &auditTrail{}
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		return s.expireAllActiveWithin(ctx, repos, trail, userID, origin)
	})
	if err != nil {
		return err
	}
	trail.publish(ctx, s.publisher)
	return nil
}

// expireAllActiveWithin sweeps the user's ACTIVE sessions using the caller's
// transaction-bound repositories. It batches writes but does not commit, so
// the sweep composes atomically with the login step that triggers it. One
// audit row is written per expired session.
func (s *SessionService) expireAllActiveWithin(ctx context.Context, repos port.RepositorySet, trail *auditTrail, userID, origin string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	sessions, err := repos.Sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}

	now := s.now().UTC()
	for _, session := range sessions {
		if err := repos.Sessions.Expire(ctx, session.ID); err != nil {
			return fmt.Errorf("expire session %s: %w", session.ID, err)
		}
		if err := trail.append(ctx, repos, domain.ActionSessionSuperseded, userID, session.ID, origin, now); err != nil {
			return err
		}
		s.metrics.SessionExpired("superseded")
	}

	if len(sessions) > 0 {
		s.logger.Info("expired previous sessions on new login",
			zap.String("user_id", userID),
			zap.Int("count", len(sessions)),
		)
	}
	return nil
}
