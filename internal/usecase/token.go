package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/infra/config"
	"github.com/quindo/portal-auth/internal/infra/security"
	"github.com/quindo/portal-auth/internal/infra/telemetry"
	"github.com/quindo/portal-auth/internal/repository"
)

const (
	numericCodeLength = 6
	resetCodeLength   = 10

	defaultActivationTTL   = time.Hour
	defaultSecondFactorTTL = 5 * time.Minute
	defaultResetTTL        = 15 * time.Minute
)

// ErrInvalidToken indicates the supplied one-time code is absent, expired,
// or wrong. The three cases are deliberately indistinguishable to callers.
var ErrInvalidToken = errors.New("token invalid or expired")

// TokenService issues and verifies typed one-time codes. Only digests are
// persisted; the plaintext is returned once to the caller for out-of-band
// delivery.
type TokenService struct {
	store   port.UnitOfWork
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	activationTTL   time.Duration
	secondFactorTTL time.Duration
	resetTTL        time.Duration
}

// NewTokenService constructs a TokenService.
func NewTokenService(store port.UnitOfWork, cfg config.AuthSettings, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TokenService{
		store:           store,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		activationTTL:   cfg.ActivationTokenTTL,
		secondFactorTTL: cfg.SecondFactorTokenTTL,
		resetTTL:        cfg.ResetTokenTTL,
	}
	if s.activationTTL <= 0 {
		s.activationTTL = defaultActivationTTL
	}
	if s.secondFactorTTL <= 0 {
		s.secondFactorTTL = defaultSecondFactorTTL
	}
	if s.resetTTL <= 0 {
		s.resetTTL = defaultResetTTL
	}
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches telemetry counters.
func (s *TokenService) WithMetrics(metrics *telemetry.Metrics) *TokenService {
	s.metrics = metrics
	return s
}

// SecondFactorTTL exposes the lifetime of second-factor codes so callers can
// align dependent state (the login challenge) with it.
func (s *TokenService) SecondFactorTTL() time.Duration {
	return s.secondFactorTTL
}

// Issue generates a one-time code of the given kind for the user, persists
// its digest, and returns the plaintext. Activation and second-factor codes
// are six digits; reset codes are longer alphanumeric strings.
func (s *TokenService) Issue(ctx context.Context, kind domain.TokenKind, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	plaintext, ttl, err := s.generate(kind)
	if err != nil {
		return "", err
	}

	digest, err := security.HashSecret(plaintext)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}

	now := s.now().UTC()
	token := domain.Token{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		CodeHash:  digest,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	err = s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		return repos.Tokens.Create(ctx, token)
	})
	if err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	s.metrics.TokenIssued(string(kind))
	s.logger.Debug("one-time code issued",
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.Time("expires_at", token.ExpiresAt),
	)

	return plaintext, nil
}

// Verify checks the supplied code against the newest unconsumed, unexpired
// token of the given kind and consumes it on match. A mismatch leaves the
// token unconsumed so the code may be retried until it expires.
func (s *TokenService) Verify(ctx context.Context, kind domain.TokenKind, userID, code string) error {
	var outcome error
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		outcome = s.verifyWithin(ctx, repos, kind, userID, code)
		if outcome != nil && !errors.Is(outcome, ErrInvalidToken) {
			return outcome
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

// verifyWithin runs the shared verification algorithm against the supplied
// transaction-bound repositories. All three token kinds use this one
// routine; consumption happens inside the caller's transaction so two
// concurrent verifications cannot both succeed.
func (s *TokenService) verifyWithin(ctx context.Context, repos port.RepositorySet, kind domain.TokenKind, userID, code string) error {
	if userID == "" || code == "" {
		return ErrInvalidToken
	}

	token, err := repos.Tokens.LatestPendingForUpdate(ctx, userID, kind, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("lookup token: %w", err)
	}

	ok, err := security.VerifySecret(code, token.CodeHash)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}

	if err := repos.Tokens.Consume(ctx, token.ID); err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	return nil
}

func (s *TokenService) generate(kind domain.TokenKind) (string, time.Duration, error) {
	switch kind {
	case domain.TokenKindActivation:
		code, err := security.GenerateNumericCode(numericCodeLength)
		return code, s.activationTTL, err
	case domain.TokenKindSecondFactor:
		code, err := security.GenerateNumericCode(numericCodeLength)
		return code, s.secondFactorTTL, err
	case domain.TokenKindReset:
		code, err := security.GenerateAlphanumericCode(resetCodeLength)
		return code, s.resetTTL, err
	default:
		return "", 0, fmt.Errorf("unknown token kind %q", kind)
	}
}
