package domain

import "time"

// SessionStatus enumerates session lifecycle states.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusExpired SessionStatus = "EXPIRED"
)

// SessionTTL is the lifetime of a session anchored to its creation time.
const SessionTTL = 8 * time.Hour

// Session represents a persisted login session. The identifier is opaque.
// Invariant: at most one session per user is ACTIVE at any instant.
type Session struct {
	ID        string
	UserID    string
	Status    SessionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsActive reports whether the session is ACTIVE and unexpired at the
// supplied moment.
func (s Session) IsActive(at time.Time) bool {
	if s.Status != SessionStatusActive {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Expire transitions the session to EXPIRED. Returns true when the session
// changed state.
func (s *Session) Expire() bool {
	if s.Status == SessionStatusExpired {
		return false
	}
	s.Status = SessionStatusExpired
	return true
}
