package domain

import "time"

// Role enumerates credential roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// DefaultLoginAttempts is the number of wrong-password attempts a credential
// may accumulate before it locks.
const DefaultLoginAttempts = 4

// User mirrors the persisted identity record in the users table.
// Identity fields are immutable after registration.
type User struct {
	ID         string
	NationalID string
	FirstNames string
	LastNames  string
	Email      string
	Phone      string
	CreatedAt  time.Time
}

// Credential is the authentication record paired one-to-one with a User.
type Credential struct {
	UserID            string
	Handle            string
	PasswordHash      string
	Role              Role
	Validated         bool
	Active            bool
	Locked            bool
	RemainingAttempts int
	CreatedAt         time.Time
}

// RegisterFailure decrements the attempt counter after a wrong password.
// Returns true when the credential transitioned into the locked state.
func (c *Credential) RegisterFailure() bool {
	c.RemainingAttempts--
	if c.RemainingAttempts <= 0 {
		c.RemainingAttempts = 0
		c.Locked = true
		return true
	}
	return false
}
