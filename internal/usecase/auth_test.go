package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/quindo/portal-auth/internal/core/domain"
)

var userSeq int

// registerUser creates a user with unique identity fields and returns the
// generated artifacts.
func registerUser(t *testing.T, env *testEnv, firstNames, lastNames string) *RegistrationResult {
	t.Helper()
	userSeq++
	result, err := env.auth.Register(context.Background(), RegistrationInput{
		NationalID: fmt.Sprintf("09254%05d", userSeq),
		FirstNames: firstNames,
		LastNames:  lastNames,
		Email:      fmt.Sprintf("user%d@example.org", userSeq),
		Phone:      fmt.Sprintf("09991%05d", userSeq),
	}, "test")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return result
}

func registerActivated(t *testing.T, env *testEnv, firstNames, lastNames string) *RegistrationResult {
	t.Helper()
	result := registerUser(t, env, firstNames, lastNames)
	if err := env.auth.Activate(context.Background(), result.Handle, result.ActivationCode); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return result
}

func login(t *testing.T, env *testEnv, handle, password string) string {
	t.Helper()
	challenge, code, err := env.auth.SubmitPassword(context.Background(), handle, password, "test")
	if err != nil {
		t.Fatalf("submit password: %v", err)
	}
	sessionID, err := env.auth.SubmitSecondFactor(context.Background(), challenge.ID, code, "test")
	if err != nil {
		t.Fatalf("submit second factor: %v", err)
	}
	return sessionID
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	env := newTestEnv()

	first := registerUser(t, env, "Ana Lucia", "Torres Vega")
	second := registerUser(t, env, "Bruno", "Mena")

	if first.Handle != "atorres" {
		t.Errorf("handle: want atorres, got %q", first.Handle)
	}
	if len(first.Password) != 8 {
		t.Errorf("password length: want 8, got %d", len(first.Password))
	}

	env.state.mu.Lock()
	firstCred := env.state.credentials[first.UserID]
	secondCred := env.state.credentials[second.UserID]
	env.state.mu.Unlock()

	if firstCred.Role != domain.RoleAdmin {
		t.Errorf("first user role: want ADMIN, got %s", firstCred.Role)
	}
	if secondCred.Role != domain.RoleUser {
		t.Errorf("second user role: want USER, got %s", secondCred.Role)
	}
	if firstCred.Validated {
		t.Error("credential should start unvalidated")
	}
	if firstCred.RemainingAttempts != domain.DefaultLoginAttempts {
		t.Errorf("attempts: want %d, got %d", domain.DefaultLoginAttempts, firstCred.RemainingAttempts)
	}

	actions := env.state.auditActions()
	if len(actions) != 2 || actions[0] != "user-created" || actions[1] != "user-created" {
		t.Errorf("audit trail: want two user-created events, got %v", actions)
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	env := newTestEnv()
	registerUser(t, env, "Carla", "Quispe")

	_, err := env.auth.Register(context.Background(), RegistrationInput{
		NationalID: "0000000001",
		FirstNames: "Carlos",
		LastNames:  "Quispe",
		Email:      "user1@example.org", // collides with the first registrant
		Phone:      "0000000001",
	}, "test")
	if !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("want ErrDuplicateRegistration, got %v", err)
	}
}

func TestActivateTwice(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Diego", "Ruiz")

	err := env.auth.Activate(context.Background(), result.Handle, result.ActivationCode)
	if !errors.Is(err, ErrAlreadyActivated) {
		t.Fatalf("want ErrAlreadyActivated, got %v", err)
	}
}

func TestLoginBeforeActivation(t *testing.T) {
	env := newTestEnv()
	result := registerUser(t, env, "Elena", "Paz")

	_, _, err := env.auth.SubmitPassword(context.Background(), result.Handle, result.Password, "test")
	if !errors.Is(err, ErrAccountNotActivated) {
		t.Fatalf("want ErrAccountNotActivated, got %v", err)
	}

	// A correct password on an unactivated account must not erode the
	// attempt counter.
	env.state.mu.Lock()
	cred := env.state.credentials[result.UserID]
	env.state.mu.Unlock()
	if cred.RemainingAttempts != domain.DefaultLoginAttempts {
		t.Errorf("attempts: want %d, got %d", domain.DefaultLoginAttempts, cred.RemainingAttempts)
	}
}

func TestLoginFullFlow(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Fabián", "Soto")

	challenge, code, err := env.auth.SubmitPassword(context.Background(), result.Handle, result.Password, "10.0.0.7")
	if err != nil {
		t.Fatalf("submit password: %v", err)
	}
	if challenge.UserID != result.UserID {
		t.Errorf("challenge user: want %s, got %s", result.UserID, challenge.UserID)
	}

	sessionID, err := env.auth.SubmitSecondFactor(context.Background(), challenge.ID, code, "10.0.0.7")
	if err != nil {
		t.Fatalf("submit second factor: %v", err)
	}

	active := env.state.activeSessions(result.UserID)
	if len(active) != 1 || active[0].ID != sessionID {
		t.Fatalf("want exactly the new session active, got %v", active)
	}
	if want := env.clock.Now().Add(domain.SessionTTL); !active[0].ExpiresAt.Equal(want) {
		t.Errorf("session expiry: want %v, got %v", want, active[0].ExpiresAt)
	}

	// The challenge is single-use.
	if _, err := env.auth.SubmitSecondFactor(context.Background(), challenge.ID, code, "10.0.0.7"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("reused challenge: want ErrChallengeExpired, got %v", err)
	}

	actions := env.state.auditActions()
	wantTail := []string{"password-accepted", "second-factor-success"}
	if len(actions) < len(wantTail) {
		t.Fatalf("audit trail too short: %v", actions)
	}
	tail := actions[len(actions)-len(wantTail):]
	for i, want := range wantTail {
		if tail[i] != want {
			t.Errorf("audit[%d]: want %s, got %s", i, want, tail[i])
		}
	}
}

func TestUnknownHandle(t *testing.T) {
	env := newTestEnv()

	_, _, err := env.auth.SubmitPassword(context.Background(), "nobody", "whatever", "test")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}

	actions := env.state.auditActions()
	if len(actions) != 1 || actions[0] != "unknown-user" {
		t.Errorf("audit trail: want [unknown-user], got %v", actions)
	}
}

func TestLockoutAfterFourFailures(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Gema", "Luna")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := env.auth.SubmitPassword(ctx, result.Handle, "wrong", "test"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: want ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	env.state.mu.Lock()
	cred := env.state.credentials[result.UserID]
	env.state.mu.Unlock()
	if cred.Locked || cred.RemainingAttempts != 1 {
		t.Fatalf("after 3 failures: want unlocked with 1 attempt, got locked=%t attempts=%d", cred.Locked, cred.RemainingAttempts)
	}

	// Fourth failure locks.
	if _, _, err := env.auth.SubmitPassword(ctx, result.Handle, "wrong", "test"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("fourth attempt: want ErrInvalidCredentials, got %v", err)
	}
	env.state.mu.Lock()
	cred = env.state.credentials[result.UserID]
	env.state.mu.Unlock()
	if !cred.Locked || cred.RemainingAttempts != 0 {
		t.Fatalf("after 4 failures: want locked with 0 attempts, got locked=%t attempts=%d", cred.Locked, cred.RemainingAttempts)
	}

	// Even the correct password is refused once locked.
	if _, _, err := env.auth.SubmitPassword(ctx, result.Handle, result.Password, "test"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login: want ErrAccountLocked, got %v", err)
	}

	actions := env.state.auditActions()
	want := []string{"wrong-password", "wrong-password", "wrong-password", "locked-by-attempts", "account-locked"}
	tail := actions[len(actions)-len(want):]
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("audit[%d]: want %s, got %s", i, want[i], tail[i])
		}
	}
}

func TestAttemptCounterResetsOnSuccess(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Hugo", "Ríos")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := env.auth.SubmitPassword(ctx, result.Handle, "wrong", "test"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if _, _, err := env.auth.SubmitPassword(ctx, result.Handle, result.Password, "test"); err != nil {
		t.Fatalf("correct password: %v", err)
	}

	env.state.mu.Lock()
	cred := env.state.credentials[result.UserID]
	env.state.mu.Unlock()
	if cred.RemainingAttempts != domain.DefaultLoginAttempts {
		t.Errorf("attempts after success: want %d, got %d", domain.DefaultLoginAttempts, cred.RemainingAttempts)
	}
}

func TestSingleActiveSession(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Inés", "Vera")

	firstSession := login(t, env, result.Handle, result.Password)
	secondSession := login(t, env, result.Handle, result.Password)

	active := env.state.activeSessions(result.UserID)
	if len(active) != 1 || active[0].ID != secondSession {
		t.Fatalf("want only the second session active, got %v", active)
	}

	env.state.mu.Lock()
	first := env.state.sessions[firstSession]
	env.state.mu.Unlock()
	if first.Status != domain.SessionStatusExpired {
		t.Errorf("first session: want EXPIRED, got %s", first.Status)
	}

	var superseded int
	for _, action := range env.state.auditActions() {
		if action == "session-expired-by-new-login" {
			superseded++
		}
	}
	if superseded != 1 {
		t.Errorf("superseded audits: want 1, got %d", superseded)
	}
}

func TestSecondFactorRetry(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Jorge", "Maldonado")

	challenge, code, err := env.auth.SubmitPassword(context.Background(), result.Handle, result.Password, "test")
	if err != nil {
		t.Fatalf("submit password: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := env.auth.SubmitSecondFactor(context.Background(), challenge.ID, wrong, "test"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong code: want ErrInvalidToken, got %v", err)
	}

	// The challenge and the token both survive a wrong code.
	if _, err := env.auth.SubmitSecondFactor(context.Background(), challenge.ID, code, "test"); err != nil {
		t.Fatalf("retry with correct code: %v", err)
	}
}

func TestSecondFactorChallengeExpires(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Karla", "Núñez")

	challenge, code, err := env.auth.SubmitPassword(context.Background(), result.Handle, result.Password, "test")
	if err != nil {
		t.Fatalf("submit password: %v", err)
	}

	env.clock.Advance(6 * time.Minute)
	if _, err := env.auth.SubmitSecondFactor(context.Background(), challenge.ID, code, "test"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("want ErrChallengeExpired, got %v", err)
	}
}

func TestInactiveAccountRefused(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Luis", "Ortega")

	env.state.mu.Lock()
	cred := env.state.credentials[result.UserID]
	cred.Active = false
	env.state.credentials[result.UserID] = cred
	env.state.mu.Unlock()

	_, _, err := env.auth.SubmitPassword(context.Background(), result.Handle, result.Password, "test")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("want ErrAccountInactive, got %v", err)
	}
}

func TestPasswordResetClearsLockout(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Marta", "Salas")
	ctx := context.Background()

	for i := 0; i < domain.DefaultLoginAttempts; i++ {
		_, _, _ = env.auth.SubmitPassword(ctx, result.Handle, "wrong", "test")
	}
	env.state.mu.Lock()
	locked := env.state.credentials[result.UserID].Locked
	env.state.mu.Unlock()
	if !locked {
		t.Fatal("expected account to be locked")
	}

	email := env.state.users[result.UserID].Email
	code, err := env.auth.RequestPasswordReset(ctx, email)
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if err := env.auth.ResetPassword(ctx, email, code, "fresh-password"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	env.state.mu.Lock()
	cred := env.state.credentials[result.UserID]
	env.state.mu.Unlock()
	if cred.Locked || cred.RemainingAttempts != domain.DefaultLoginAttempts {
		t.Fatalf("after reset: want unlocked with full attempts, got locked=%t attempts=%d", cred.Locked, cred.RemainingAttempts)
	}

	login(t, env, result.Handle, "fresh-password")
}

func TestPasswordResetKeepsSessions(t *testing.T) {
	env := newTestEnv()
	result := registerActivated(t, env, "Nora", "Ibarra")
	ctx := context.Background()

	sessionID := login(t, env, result.Handle, result.Password)

	email := env.state.users[result.UserID].Email
	code, err := env.auth.RequestPasswordReset(ctx, email)
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if err := env.auth.ResetPassword(ctx, email, code, "another-password"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	active := env.state.activeSessions(result.UserID)
	if len(active) != 1 || active[0].ID != sessionID {
		t.Fatalf("session should survive a password reset, got %v", active)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv()

	if _, err := env.auth.RequestPasswordReset(context.Background(), "ghost@example.org"); !errors.Is(err, ErrInvalidResetRequest) {
		t.Fatalf("want ErrInvalidResetRequest, got %v", err)
	}
	if err := env.auth.ResetPassword(context.Background(), "ghost@example.org", "anything", "pw"); !errors.Is(err, ErrInvalidResetRequest) {
		t.Fatalf("want ErrInvalidResetRequest, got %v", err)
	}
}

func TestGenerateHandle(t *testing.T) {
	cases := []struct {
		firstNames string
		lastNames  string
		want       string
	}{
		{"Ana Lucia", "Torres Vega", "atorres"},
		{"Bruno", "Mena", "bmena"},
		{"Álvaro", "Núñez Paredes", "ánúñez"},
		{"", "Torres", ""},
		{"Ana", "", ""},
	}
	for _, tc := range cases {
		if got := generateHandle(tc.firstNames, tc.lastNames); got != tc.want {
			t.Errorf("generateHandle(%q, %q): want %q, got %q", tc.firstNames, tc.lastNames, tc.want, got)
		}
	}
}
