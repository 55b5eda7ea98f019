package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/repository"
)

const (
	defaultChallengePrefix = "login_challenge"

	fieldUserID   = "user_id"
	fieldOrigin   = "origin"
	fieldIssuedAt = "issued_at"
)

// ChallengeStore keeps pending-authentication values in Redis between the
// password step and the second-factor step. Entries carry the TTL of the
// second-factor code they accompany.
type ChallengeStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewChallengeStore constructs a challenge store with the provided Redis
// client and key prefix.
func NewChallengeStore(client *red.Client, keyPrefix string) *ChallengeStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}
	return &ChallengeStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Put persists a challenge with the supplied TTL.
func (s *ChallengeStore) Put(ctx context.Context, challenge domain.LoginChallenge, ttl time.Duration) error {
	switch {
	case challenge.ID == "":
		return errors.New("challenge id is required")
	case challenge.UserID == "":
		return errors.New("user id is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	issuedAt := challenge.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now().UTC()
	}

	key := s.key(challenge.ID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldUserID:   challenge.UserID,
		fieldOrigin:   challenge.Origin,
		fieldIssuedAt: strconv.FormatInt(issuedAt.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}
	return nil
}

// Get retrieves a challenge by identifier. Expired or unknown entries yield
// repository.ErrNotFound.
func (s *ChallengeStore) Get(ctx context.Context, id string) (*domain.LoginChallenge, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("challenge id is required")
	}

	values, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	userID := strings.TrimSpace(values[fieldUserID])
	if userID == "" {
		return nil, repository.ErrNotFound
	}

	issuedAt, err := parseUnix(values[fieldIssuedAt])
	if err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}

	return &domain.LoginChallenge{
		ID:       id,
		UserID:   userID,
		Origin:   values[fieldOrigin],
		IssuedAt: issuedAt,
	}, nil
}

// Delete removes the challenge once the second factor has been accepted.
func (s *ChallengeStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("challenge id is required")
	}

	deleted, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// WithClock overrides the internal clock, used in tests.
func (s *ChallengeStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func (s *ChallengeStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}
