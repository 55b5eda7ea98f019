package domain

import "time"

// TokenKind discriminates the three one-time code purposes.
type TokenKind string

const (
	TokenKindActivation   TokenKind = "ACTIVATION"
	TokenKindSecondFactor TokenKind = "SECOND_FACTOR"
	TokenKindReset        TokenKind = "RESET"
)

// Token is a persisted one-time code. Only the digest of the plaintext is
// stored. Consumed tokens are kept, never deleted, so the trail of issued
// codes survives. Several unconsumed tokens of one kind may coexist for a
// user; verification always targets the most recently issued one.
type Token struct {
	ID        string
	UserID    string
	Kind      TokenKind
	CodeHash  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// IsExpired reports whether the token has elapsed its validity window.
func (t Token) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// Consume marks the token as used. Returns true when the token transitioned
// from unconsumed to consumed.
func (t *Token) Consume() bool {
	if t.Consumed {
		return false
	}
	t.Consumed = true
	return true
}
