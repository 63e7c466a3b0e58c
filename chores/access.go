package chores

import (
	"context"
	"fmt"
)

// Decision is the outcome of Authorize.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Authorize decides whether actor may act on target's data.
// Admins may act on anyone; everyone else only on themselves.
func Authorize(actor Principal, target PrincipalID) Decision {
	if actor.IsAdmin {
		return Allow
	}
	if actor.ID == target {
		return Allow
	}
	return Deny
}

// loadActor resolves the authenticated caller. A token for a principal that
// no longer exists is treated as unauthenticated.
func loadActor(ctx context.Context, s Store, id PrincipalID) (*Principal, error) {
	actor, err := s.GetPrincipal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if actor == nil {
		return nil, ErrUnauthorized
	}
	return actor, nil
}

// loadChild looks up a child and authorizes the caller against it in one
// step. A missing principal, an admin target and a denied caller all come
// back as the same ErrNotFound so callers cannot probe which children exist.
func loadChild(ctx context.Context, s Store, actorID, childID PrincipalID) (*Principal, error) {
	actor, err := loadActor(ctx, s, actorID)
	if err != nil {
		return nil, err
	}

	child, err := s.GetPrincipal(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("load child: %w", err)
	}
	if child == nil || child.IsAdmin {
		return nil, ErrNotFound
	}
	if Authorize(*actor, child.ID) == Deny {
		return nil, ErrNotFound
	}
	return child, nil
}

// requireAdmin resolves the caller and rejects non-admins with ErrForbidden.
func requireAdmin(ctx context.Context, s Store, actorID PrincipalID) (*Principal, error) {
	actor, err := loadActor(ctx, s, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	return actor, nil
}
