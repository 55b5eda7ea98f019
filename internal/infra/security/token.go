package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const alphanumericAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateNumericCode returns a random numeric string of the given length,
// suitable for activation and second-factor codes.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}

// GenerateAlphanumericCode returns a random mixed-case alphanumeric string of
// the given length, used for reset codes and generated initial passwords.
func GenerateAlphanumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	out := make([]byte, length)
	max := big.NewInt(int64(len(alphanumericAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = alphanumericAlphabet[n.Int64()]
	}
	return string(out), nil
}
