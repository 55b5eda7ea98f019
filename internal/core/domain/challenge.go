package domain

import "time"

// LoginChallenge is the explicit pending-authentication value returned from
// the password step and presented at the second-factor step. It replaces any
// ambient "current login" state a caller might otherwise hold.
type LoginChallenge struct {
	ID       string
	UserID   string
	Origin   string
	IssuedAt time.Time
}
