// Package password hashes passwords and recovery codes with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/uninbox/authd/internal/ports"
)

// BcryptHasher implements ports.PasswordHasher.
type BcryptHasher struct {
	cost int
}

var _ ports.PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher using cost, clamped to bcrypt's range.
func NewBcryptHasher(cost int) *BcryptHasher {
	cost = max(cost, bcrypt.MinCost)
	cost = min(cost, bcrypt.MaxCost)
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of secret. bcrypt only reads the first 72 bytes;
// longer inputs are rejected rather than silently truncated.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Compare checks secret against hash.
func (h *BcryptHasher) Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ports.ErrPasswordMismatch
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}
