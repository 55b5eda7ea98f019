package domain

import "time"

// AuditAction is a stable action code written to the audit trail and consumed
// by reporting tooling. The string code is authoritative; the numeric code
// groups related actions for legacy reports.
type AuditAction struct {
	Name string
	Code int
}

var (
	ActionUserCreated         = AuditAction{Name: "user-created", Code: 100}
	ActionUnknownUser         = AuditAction{Name: "unknown-user", Code: 101}
	ActionAccountLocked       = AuditAction{Name: "account-locked", Code: 102}
	ActionWrongPassword       = AuditAction{Name: "wrong-password", Code: 103}
	ActionLockedByAttempts    = AuditAction{Name: "locked-by-attempts", Code: 103}
	ActionAccountNotActivated = AuditAction{Name: "account-not-activated", Code: 104}
	ActionAccountInactive     = AuditAction{Name: "account-inactive", Code: 105}
	ActionPasswordAccepted    = AuditAction{Name: "password-accepted", Code: 200}
	ActionSecondFactorSuccess = AuditAction{Name: "second-factor-success", Code: 201}
	ActionLogout              = AuditAction{Name: "logout", Code: 300}
	ActionSessionSuperseded   = AuditAction{Name: "session-expired-by-new-login", Code: 301}
)

// AuditEvent is an append-only log entry. Events are never mutated or
// deleted; every state-changing operation writes one, including failures.
type AuditEvent struct {
	ID        string
	UserID    *string
	SessionID *string
	Action    string
	Code      int
	IP        string
	At        time.Time
}

// NewAuditEvent builds an event for the supplied action. userID and sessionID
// may be empty when the action has no subject (e.g. unknown-user).
func NewAuditEvent(id string, action AuditAction, userID, sessionID, ip string, at time.Time) AuditEvent {
	event := AuditEvent{
		ID:     id,
		Action: action.Name,
		Code:   action.Code,
		IP:     ip,
		At:     at,
	}
	if userID != "" {
		event.UserID = &userID
	}
	if sessionID != "" {
		event.SessionID = &sessionID
	}
	return event
}
