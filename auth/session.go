package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/chore-engine/chores"
)

const issuer = "chore-engine"

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is what a session token says about its holder.
type Claims struct {
	UserID chores.PrincipalID `json:"userId"`
	Name   string             `json:"name"`
	Role   string             `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token was issued to an admin. Handlers use it
// for early rejection only; the service re-checks against the store.
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// Sessions issues and verifies HS256-signed session tokens.
type Sessions struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSessions creates a token issuer. secret must not be empty.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the identity.
func (s *Sessions) Issue(id chores.Identity) (string, error) {
	now := s.now()
	role := "child"
	if id.IsAdmin {
		role = "admin"
	}
	claims := Claims{
		UserID: id.PrincipalID,
		Name:   id.Name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(id.PrincipalID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Parse validates a token and returns its claims.
func (s *Sessions) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims, nil
}
