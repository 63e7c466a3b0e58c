package chores

import (
	"context"
	"regexp"
)

// Hasher turns a PIN into a salted, slow digest and checks a PIN against one.
// Digests are non-deterministic, so principals cannot be looked up by digest.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidatePIN checks the 4-digit shape before any digest is touched.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return fieldError("pin", "PIN must be exactly 4 digits")
	}
	return nil
}

// CredentialMatcher finds the principal whose digest matches a PIN.
//
// It is a linear scan over every principal in insertion order and returns
// the first match. Two principals sharing a PIN is not prevented here; the
// earlier one wins. Fine for a household, not for a large user base.
type CredentialMatcher struct {
	store  Store
	hasher Hasher
}

func NewCredentialMatcher(store Store, hasher Hasher) *CredentialMatcher {
	return &CredentialMatcher{store: store, hasher: hasher}
}

// Match returns the first principal whose digest verifies pin, or ErrNotFound.
// Callers validate the PIN shape first.
func (m *CredentialMatcher) Match(ctx context.Context, pin string) (*Principal, error) {
	principals, err := m.store.ListPrincipals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range principals {
		if m.hasher.Verify(pin, principals[i].PINDigest) {
			return &principals[i], nil
		}
	}
	return nil, ErrNotFound
}
