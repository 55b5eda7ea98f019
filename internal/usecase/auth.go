package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/infra/config"
	"github.com/quindo/portal-auth/internal/infra/logger"
	"github.com/quindo/portal-auth/internal/infra/security"
	"github.com/quindo/portal-auth/internal/infra/telemetry"
	"github.com/quindo/portal-auth/internal/repository"
)

const generatedPasswordLength = 8

var (
	// ErrInvalidCredentials indicates the handle or password is wrong. The
	// unknown-handle case is deliberately indistinguishable from a wrong
	// password so handles cannot be enumerated.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the credential locked after repeated
	// failures; fatal until a password reset clears it.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive indicates the account was administratively disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountNotActivated indicates the activation step is still pending.
	ErrAccountNotActivated = errors.New("account not activated")
	// ErrAlreadyActivated indicates a repeated activation attempt.
	ErrAlreadyActivated = errors.New("account already activated")
	// ErrDuplicateRegistration indicates a unique-field collision at
	// registration (handle, email, national id, or phone).
	ErrDuplicateRegistration = errors.New("duplicate registration")
	// ErrUserNotFound indicates the referenced user or credential is absent.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidResetRequest indicates the reset email is unknown. Callers
	// must render it identically to a generic failure so email addresses
	// cannot be probed.
	ErrInvalidResetRequest = errors.New("invalid reset request")
	// ErrChallengeExpired indicates the pending-login challenge is gone; the
	// caller must restart from the password step.
	ErrChallengeExpired = errors.New("login challenge expired")
)

// RegistrationInput carries the identity fields for a new user. All fields
// are required.
type RegistrationInput struct {
	NationalID string
	FirstNames string
	LastNames  string
	Email      string
	Phone      string
}

// RegistrationResult returns the generated artifacts for out-of-band
// delivery to the new user.
type RegistrationResult struct {
	UserID         string
	Handle         string
	Password       string
	ActivationCode string
}

// AuthService orchestrates registration, activation, the two-step login
// protocol, and password reset. It owns the lockout accounting.
type AuthService struct {
	store      port.UnitOfWork
	challenges port.LoginChallengeStore
	tokens     *TokenService
	sessions   *SessionService
	publisher  port.AuditPublisher
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time

	maxAttempts int
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	store port.UnitOfWork,
	challenges port.LoginChallengeStore,
	tokens *TokenService,
	sessions *SessionService,
	publisher port.AuditPublisher,
	cfg config.AuthSettings,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	maxAttempts := cfg.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultLoginAttempts
	}
	return &AuthService{
		store:       store,
		challenges:  challenges,
		tokens:      tokens,
		sessions:    sessions,
		publisher:   publisher,
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: maxAttempts,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches telemetry counters.
func (s *AuthService) WithMetrics(metrics *telemetry.Metrics) *AuthService {
	s.metrics = metrics
	return s
}

// SubmitPassword is the first login step. On success it expires any prior
// ACTIVE sessions, issues a second-factor code, and returns a challenge the
// caller presents at the second step together with the plaintext code for
// out-of-band delivery.
//
// Outcome ordering: unknown handle, locked, inactive, wrong password (with
// lockout accounting), not activated, success. The attempt counter resets on
// any correct password, before the activation check, so repeated correct
// logins against an unactivated account never erode it.
func (s *AuthService) SubmitPassword(ctx context.Context, handle, password, origin string) (*domain.LoginChallenge, string, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, "", fmt.Errorf("handle is required")
	}
	if password == "" {
		return nil, "", fmt.Errorf("password is required")
	}

	var (
		outcome error
		userID  string
	)
	trail := &auditTrail{}
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		now := s.now().UTC()

		credential, err := repos.Credentials.GetByHandleForUpdate(ctx, handle)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				outcome = ErrInvalidCredentials
				return trail.append(ctx, repos, domain.ActionUnknownUser, "", "", origin, now)
			}
			return fmt.Errorf("lookup credential: %w", err)
		}

		if credential.Locked {
			outcome = ErrAccountLocked
			return trail.append(ctx, repos, domain.ActionAccountLocked, credential.UserID, "", origin, now)
		}
		if !credential.Active {
			outcome = ErrAccountInactive
			return trail.append(ctx, repos, domain.ActionAccountInactive, credential.UserID, "", origin, now)
		}

		ok, err := security.VerifySecret(password, credential.PasswordHash)
		if err != nil {
			return fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			action := domain.ActionWrongPassword
			if credential.RegisterFailure() {
				action = domain.ActionLockedByAttempts
			}
			if err := repos.Credentials.Update(ctx, *credential); err != nil {
				return fmt.Errorf("update credential: %w", err)
			}
			outcome = ErrInvalidCredentials
			return trail.append(ctx, repos, action, credential.UserID, "", origin, now)
		}

		credential.RemainingAttempts = s.maxAttempts
		if err := repos.Credentials.Update(ctx, *credential); err != nil {
			return fmt.Errorf("update credential: %w", err)
		}

		if !credential.Validated {
			outcome = ErrAccountNotActivated
			return trail.append(ctx, repos, domain.ActionAccountNotActivated, credential.UserID, "", origin, now)
		}

		// Single-session invariant: sweep before the second factor is even
		// presented, inside the same transaction as the password check.
		if err := s.sessions.expireAllActiveWithin(ctx, repos, trail, credential.UserID, origin); err != nil {
			return err
		}
		if err := trail.append(ctx, repos, domain.ActionPasswordAccepted, credential.UserID, "", origin, now); err != nil {
			return err
		}

		userID = credential.UserID
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	trail.publish(ctx, s.publisher)
	if outcome != nil {
		s.metrics.LoginAttempt(outcomeLabel(outcome))
		return nil, "", outcome
	}

	code, err := s.tokens.Issue(ctx, domain.TokenKindSecondFactor, userID)
	if err != nil {
		return nil, "", err
	}

	challenge := domain.LoginChallenge{
		ID:       uuid.NewString(),
		UserID:   userID,
		Origin:   origin,
		IssuedAt: s.now().UTC(),
	}
	if err := s.challenges.Put(ctx, challenge, s.tokens.SecondFactorTTL()); err != nil {
		return nil, "", fmt.Errorf("store login challenge: %w", err)
	}

	s.metrics.LoginAttempt("password_accepted")
	return &challenge, code, nil
}

// SubmitSecondFactor is the second login step. A valid code consumes the
// second-factor token and creates the session atomically; an invalid code
// leaves both the token and the challenge intact for retry until expiry.
func (s *AuthService) SubmitSecondFactor(ctx context.Context, challengeID, code, origin string) (string, error) {
	if challengeID == "" {
		return "", fmt.Errorf("challenge id is required")
	}

	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrChallengeExpired
		}
		return "", fmt.Errorf("lookup login challenge: %w", err)
	}
	if origin == "" {
		origin = challenge.Origin
	}

	sessionID := uuid.NewString()
	var outcome error
	trail := &auditTrail{}
	err = s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		if err := s.tokens.verifyWithin(ctx, repos, domain.TokenKindSecondFactor, challenge.UserID, code); err != nil {
			if errors.Is(err, ErrInvalidToken) {
				outcome = ErrInvalidToken
				return nil
			}
			return err
		}
		return s.sessions.createWithin(ctx, repos, trail, challenge.UserID, sessionID, origin)
	})
	if err != nil {
		return "", err
	}
	trail.publish(ctx, s.publisher)
	if outcome != nil {
		s.metrics.LoginAttempt("second_factor_failed")
		return "", outcome
	}

	if err := s.challenges.Delete(ctx, challengeID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to delete login challenge", zap.String("challenge_id", challengeID), zap.Error(err))
	}

	s.metrics.LoginAttempt("authenticated")
	return sessionID, nil
}

// Register creates a User and its Credential, audits the creation, and
// issues an activation code. The very first registrant becomes ADMIN. The
// generated handle is the first initial plus the first surname word,
// lower-cased; the initial password is random.
func (s *AuthService) Register(ctx context.Context, input RegistrationInput, origin string) (*RegistrationResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	handle := generateHandle(input.FirstNames, input.LastNames)
	password, err := security.GenerateAlphanumericCode(generatedPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	passwordHash, err := security.HashSecret(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:         uuid.NewString(),
		NationalID: strings.TrimSpace(input.NationalID),
		FirstNames: strings.TrimSpace(input.FirstNames),
		LastNames:  strings.TrimSpace(input.LastNames),
		Email:      strings.TrimSpace(input.Email),
		Phone:      strings.TrimSpace(input.Phone),
		CreatedAt:  now,
	}

	trail := &auditTrail{}
	err = s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		count, err := repos.Users.Count(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}

		role := domain.RoleUser
		if count == 0 {
			role = domain.RoleAdmin
		}

		if err := repos.Users.Create(ctx, user); err != nil {
			return err
		}

		credential := domain.Credential{
			UserID:            user.ID,
			Handle:            handle,
			PasswordHash:      passwordHash,
			Role:              role,
			Active:            true,
			RemainingAttempts: s.maxAttempts,
			CreatedAt:         now,
		}
		if err := repos.Credentials.Create(ctx, credential); err != nil {
			return err
		}

		return trail.append(ctx, repos, domain.ActionUserCreated, user.ID, "", origin, now)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateRegistration
		}
		return nil, err
	}
	trail.publish(ctx, s.publisher)

	activationCode, err := s.tokens.Issue(ctx, domain.TokenKindActivation, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("handle", handle),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &RegistrationResult{
		UserID:         user.ID,
		Handle:         handle,
		Password:       password,
		ActivationCode: activationCode,
	}, nil
}

// Activate validates the activation code for the handle and marks the
// credential as validated.
func (s *AuthService) Activate(ctx context.Context, handle, code string) error {
	if handle == "" {
		return fmt.Errorf("handle is required")
	}

	var outcome error
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		credential, err := repos.Credentials.GetByHandleForUpdate(ctx, handle)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				outcome = ErrUserNotFound
				return nil
			}
			return fmt.Errorf("lookup credential: %w", err)
		}
		if credential.Validated {
			outcome = ErrAlreadyActivated
			return nil
		}

		if err := s.tokens.verifyWithin(ctx, repos, domain.TokenKindActivation, credential.UserID, code); err != nil {
			if errors.Is(err, ErrInvalidToken) {
				outcome = ErrInvalidToken
				return nil
			}
			return err
		}

		credential.Validated = true
		if err := repos.Credentials.Update(ctx, *credential); err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

// RequestPasswordReset resolves the user by email and issues a reset code.
// An unknown email yields the same outcome callers present as a generic
// "check your email" message.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("email is required")
	}

	var userID string
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		user, err := repos.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidResetRequest
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	return s.tokens.Issue(ctx, domain.TokenKindReset, userID)
}

// ResetPassword verifies the reset code and installs the new password,
// clearing the lockout state and restoring the attempt counter.
//
// Existing active sessions deliberately survive a password reset; the sweep
// used at login is not invoked here. Known limitation carried over from the
// system this replaces.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if newPassword == "" {
		return fmt.Errorf("new password is required")
	}

	newHash, err := security.HashSecret(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var outcome error
	err = s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		user, err := repos.Users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				outcome = ErrInvalidResetRequest
				return nil
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		if err := s.tokens.verifyWithin(ctx, repos, domain.TokenKindReset, user.ID, code); err != nil {
			if errors.Is(err, ErrInvalidToken) {
				outcome = ErrInvalidToken
				return nil
			}
			return err
		}

		credential, err := repos.Credentials.GetByUserIDForUpdate(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("lookup credential: %w", err)
		}

		credential.PasswordHash = newHash
		credential.Locked = false
		credential.RemainingAttempts = s.maxAttempts
		if err := repos.Credentials.Update(ctx, *credential); err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

func (in RegistrationInput) validate() error {
	switch {
	case strings.TrimSpace(in.NationalID) == "":
		return fmt.Errorf("national id is required")
	case strings.TrimSpace(in.FirstNames) == "":
		return fmt.Errorf("first names are required")
	case strings.TrimSpace(in.LastNames) == "":
		return fmt.Errorf("last names are required")
	case strings.TrimSpace(in.Email) == "":
		return fmt.Errorf("email is required")
	case strings.TrimSpace(in.Phone) == "":
		return fmt.Errorf("phone is required")
	}
	return nil
}

// generateHandle derives the login handle from the name fields: first
// initial plus the first surname word, lower-cased.
func generateHandle(firstNames, lastNames string) string {
	first := []rune(strings.TrimSpace(firstNames))
	surname := strings.Fields(strings.TrimSpace(lastNames))
	if len(first) == 0 || len(surname) == 0 {
		return ""
	}
	return strings.ToLower(string(first[0]) + surname[0])
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrAccountNotActivated):
		return "account_not_activated"
	default:
		return "error"
	}
}
