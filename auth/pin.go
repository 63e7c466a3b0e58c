// Package auth provides PIN hashing and signed session tokens.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PINHasher hashes PINs with bcrypt. Each digest carries its own salt, so
// the same PIN hashes differently every time.
type PINHasher struct {
	cost int
}

// NewPINHasher returns a hasher with the given bcrypt cost. Zero means
// bcrypt.DefaultCost.
func NewPINHasher(cost int) (*PINHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PINHasher{cost: cost}, nil
}

// Hash generates a bcrypt digest of the PIN.
func (h *PINHasher) Hash(pin string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(pin), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(digest), nil
}

// Verify compares a PIN with a bcrypt digest. Malformed digests never match.
func (h *PINHasher) Verify(pin, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(pin)) == nil
}
