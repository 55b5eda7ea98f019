package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/infra/config"
	"github.com/quindo/portal-auth/internal/repository"
)

// memStore backs the usecase tests with in-memory repositories. Do simply
// runs fn against the shared state; transactional rollback is covered by the
// pgx-level tests, not here.
type memStore struct {
	repos port.RepositorySet
}

func newMemStore() (*memStore, *memState) {
	state := &memState{
		users:       map[string]domain.User{},
		credentials: map[string]domain.Credential{},
		sessions:    map[string]domain.Session{},
	}
	return &memStore{repos: port.RepositorySet{
		Users:       &memUsers{state: state},
		Credentials: &memCredentials{state: state},
		Tokens:      &memTokens{state: state},
		Sessions:    &memSessions{state: state},
		Audit:       &memAudit{state: state},
	}}, state
}

func (m *memStore) Do(ctx context.Context, fn func(ctx context.Context, repos port.RepositorySet) error) error {
	return fn(ctx, m.repos)
}

// commitFailStore lets fn run to completion and then fails the way a broken
// commit would.
type commitFailStore struct {
	inner port.UnitOfWork
}

func (s *commitFailStore) Do(ctx context.Context, fn func(ctx context.Context, repos port.RepositorySet) error) error {
	if err := s.inner.Do(ctx, fn); err != nil {
		return err
	}
	return errors.New("commit failed")
}

type memState struct {
	mu          sync.Mutex
	users       map[string]domain.User
	credentials map[string]domain.Credential // keyed by user id
	tokens      []domain.Token
	sessions    map[string]domain.Session
	audit       []domain.AuditEvent
}

func (s *memState) credentialByHandle(handle string) (domain.Credential, bool) {
	for _, c := range s.credentials {
		if c.Handle == handle {
			return c, true
		}
	}
	return domain.Credential{}, false
}

func (s *memState) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *memState) activeSessions(userID string) []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Status == domain.SessionStatusActive {
			out = append(out, sess)
		}
	}
	return out
}

type memUsers struct{ state *memState }

func (r *memUsers) Create(_ context.Context, user domain.User) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for _, existing := range r.state.users {
		if existing.Email == user.Email || existing.NationalID == user.NationalID || existing.Phone == user.Phone {
			return repository.ErrDuplicate
		}
	}
	r.state.users[user.ID] = user
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	user, ok := r.state.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for _, user := range r.state.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) Count(_ context.Context) (int, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return len(r.state.users), nil
}

type memCredentials struct{ state *memState }

func (r *memCredentials) Create(_ context.Context, credential domain.Credential) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, exists := r.state.credentialByHandle(credential.Handle); exists {
		return repository.ErrDuplicate
	}
	r.state.credentials[credential.UserID] = credential
	return nil
}

func (r *memCredentials) GetByHandle(_ context.Context, handle string) (*domain.Credential, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	credential, ok := r.state.credentialByHandle(handle)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &credential, nil
}

func (r *memCredentials) GetByHandleForUpdate(ctx context.Context, handle string) (*domain.Credential, error) {
	return r.GetByHandle(ctx, handle)
}

func (r *memCredentials) GetByUserIDForUpdate(_ context.Context, userID string) (*domain.Credential, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	credential, ok := r.state.credentials[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &credential, nil
}

func (r *memCredentials) Update(_ context.Context, credential domain.Credential) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.credentials[credential.UserID]; !ok {
		return repository.ErrNotFound
	}
	r.state.credentials[credential.UserID] = credential
	return nil
}

type memTokens struct{ state *memState }

func (r *memTokens) Create(_ context.Context, token domain.Token) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.tokens = append(r.state.tokens, token)
	return nil
}

func (r *memTokens) LatestPendingForUpdate(_ context.Context, userID string, kind domain.TokenKind, now time.Time) (*domain.Token, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var candidates []domain.Token
	for _, token := range r.state.tokens {
		if token.UserID == userID && token.Kind == kind && !token.Consumed && token.ExpiresAt.After(now) {
			candidates = append(candidates, token)
		}
	}
	if len(candidates) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].IssuedAt.After(candidates[j].IssuedAt)
	})
	token := candidates[0]
	return &token, nil
}

func (r *memTokens) Consume(_ context.Context, id string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for i, token := range r.state.tokens {
		if token.ID == id && !token.Consumed {
			r.state.tokens[i].Consumed = true
			return nil
		}
	}
	return repository.ErrNotFound
}

type memSessions struct{ state *memState }

func (r *memSessions) Create(_ context.Context, session domain.Session) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.sessions[session.ID] = session
	return nil
}

func (r *memSessions) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	session, ok := r.state.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (r *memSessions) ListActiveByUser(_ context.Context, userID string) ([]domain.Session, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var out []domain.Session
	for _, session := range r.state.sessions {
		if session.UserID == userID && session.Status == domain.SessionStatusActive {
			out = append(out, session)
		}
	}
	return out, nil
}

func (r *memSessions) Expire(_ context.Context, id string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	session, ok := r.state.sessions[id]
	if !ok || session.Status != domain.SessionStatusActive {
		return repository.ErrNotFound
	}
	session.Status = domain.SessionStatusExpired
	r.state.sessions[id] = session
	return nil
}

type memAudit struct{ state *memState }

func (r *memAudit) Append(_ context.Context, event domain.AuditEvent) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.audit = append(r.state.audit, event)
	return nil
}

// memChallenges is an in-memory LoginChallengeStore honoring TTLs against
// the test clock.
type memChallenges struct {
	mu      sync.Mutex
	entries map[string]challengeEntry
	now     func() time.Time
}

type challengeEntry struct {
	challenge domain.LoginChallenge
	expiresAt time.Time
}

func newMemChallenges(now func() time.Time) *memChallenges {
	return &memChallenges{entries: map[string]challengeEntry{}, now: now}
}

func (c *memChallenges) Put(_ context.Context, challenge domain.LoginChallenge, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[challenge.ID] = challengeEntry{challenge: challenge, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *memChallenges) Get(_ context.Context, id string) (*domain.LoginChallenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok || !entry.expiresAt.After(c.now()) {
		return nil, repository.ErrNotFound
	}
	challenge := entry.challenge
	return &challenge, nil
}

func (c *memChallenges) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(c.entries, id)
	return nil
}

// recordingPublisher captures mirrored audit events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (p *recordingPublisher) PublishAuditEvent(_ context.Context, event domain.AuditEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// testClock is a movable clock shared by all services in a test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv bundles the fully wired services over in-memory storage.
type testEnv struct {
	clock      *testClock
	state      *memState
	challenges *memChallenges
	publisher  *recordingPublisher
	tokens     *TokenService
	sessions   *SessionService
	auth       *AuthService
}

func newTestEnv() *testEnv {
	clock := newTestClock()
	store, state := newMemStore()
	challenges := newMemChallenges(clock.Now)
	publisher := &recordingPublisher{}

	tokens := NewTokenService(store, config.AuthSettings{}, zap.NewNop())
	tokens.WithClock(clock.Now)

	sessions := NewSessionService(store, publisher, zap.NewNop())
	sessions.WithClock(clock.Now)

	auth := NewAuthService(store, challenges, tokens, sessions, publisher, config.AuthSettings{}, zap.NewNop())
	auth.WithClock(clock.Now)

	return &testEnv{
		clock:      clock,
		state:      state,
		challenges: challenges,
		publisher:  publisher,
		tokens:     tokens,
		sessions:   sessions,
		auth:       auth,
	}
}
