/*
service.go - Boundary operations for the HTTP and CLI layers

PURPOSE:
  Service is what the outside world calls. Each method acquires what it
  needs from the injected Store (a transaction where writes are involved),
  applies the access rules, and returns typed errors from errors.go.

OPERATIONS:
  Authenticate     PIN -> Identity
  ListTasksFor     child's tasks (self or admin)
  GetBalance       child's cached balance (self or admin)
  History          child's ledger entries (self or admin)
  CompleteTask     see task.go
  CreateTask       admin only, see task.go
  DeleteTask       admin only, see task.go
  ListChildren     admin only
  ListAllTasks     admin only
  Subscribe        store a push subscription for the caller
  Unsubscribe      clear it
  CreatePrincipal  provisioning (CLI, fixtures)
  Reset            wipe tasks and ledger, zero balances (CLI, confirmed by caller)
  VerifyLedger     recompute balances from the ledger
*/
package chores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Service implements the boundary operations of the chore engine.
type Service struct {
	store    Store
	hasher   Hasher
	matcher  *CredentialMatcher
	ledger   *Ledger
	notifier *Dispatcher
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDispatcher sets the post-commit notification hook.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Service) { s.notifier = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, hasher Hasher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		hasher:  hasher,
		matcher: NewCredentialMatcher(store, hasher),
		ledger:  NewLedger(store),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger.now = s.now
	return s
}

// Ledger exposes the point ledger (penalties, bonuses, audits).
func (s *Service) Ledger() *Ledger { return s.ledger }

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Authenticate matches a 4-digit PIN against every principal.
func (s *Service) Authenticate(ctx context.Context, pin string) (Identity, error) {
	if err := ValidatePIN(pin); err != nil {
		recordAuth("malformed")
		return Identity{}, err
	}

	p, err := s.matcher.Match(ctx, pin)
	if errors.Is(err, ErrNotFound) {
		recordAuth("mismatch")
		return Identity{}, ErrUnauthorized
	}
	if err != nil {
		return Identity{}, fmt.Errorf("match credential: %w", err)
	}

	recordAuth("ok")
	return Identity{PrincipalID: p.ID, Name: p.Name, IsAdmin: p.IsAdmin}, nil
}

// =============================================================================
// CHILD-SCOPED READS
// =============================================================================

func (s *Service) ListTasksFor(ctx context.Context, childID, requesterID PrincipalID) ([]Task, error) {
	child, err := loadChild(ctx, s.store, requesterID, childID)
	if err != nil {
		return nil, err
	}
	return s.store.ListTasksByOwner(ctx, child.ID)
}

func (s *Service) GetBalance(ctx context.Context, childID, requesterID PrincipalID) (int64, error) {
	child, err := loadChild(ctx, s.store, requesterID, childID)
	if err != nil {
		return 0, err
	}
	return child.Balance, nil
}

func (s *Service) History(ctx context.Context, childID, requesterID PrincipalID) ([]LedgerEntry, error) {
	child, err := loadChild(ctx, s.store, requesterID, childID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, child.ID)
}

// =============================================================================
// ADMIN READS
// =============================================================================

// ListChildren returns every non-admin principal with its balance.
func (s *Service) ListChildren(ctx context.Context, requesterID PrincipalID) ([]Principal, error) {
	if _, err := requireAdmin(ctx, s.store, requesterID); err != nil {
		return nil, err
	}
	all, err := s.store.ListPrincipals(ctx)
	if err != nil {
		return nil, err
	}
	children := make([]Principal, 0, len(all))
	for _, p := range all {
		if !p.IsAdmin {
			children = append(children, p)
		}
	}
	return children, nil
}

func (s *Service) ListAllTasks(ctx context.Context, requesterID PrincipalID) ([]Task, error) {
	if _, err := requireAdmin(ctx, s.store, requesterID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx)
}

// =============================================================================
// PUSH SUBSCRIPTIONS
// =============================================================================

func (s *Service) Subscribe(ctx context.Context, requesterID PrincipalID, sub Subscription) error {
	if strings.TrimSpace(sub.Endpoint) == "" ||
		strings.TrimSpace(sub.Keys.P256dh) == "" ||
		strings.TrimSpace(sub.Keys.Auth) == "" {
		return fieldError("subscription", "endpoint, keys.p256dh and keys.auth are required")
	}
	if _, err := loadActor(ctx, s.store, requesterID); err != nil {
		return err
	}
	return s.store.SetSubscription(ctx, requesterID, &sub, s.now().UTC())
}

func (s *Service) Unsubscribe(ctx context.Context, requesterID PrincipalID) error {
	if _, err := loadActor(ctx, s.store, requesterID); err != nil {
		return err
	}
	return s.store.SetSubscription(ctx, requesterID, nil, s.now().UTC())
}

// =============================================================================
// PROVISIONING & MAINTENANCE
// =============================================================================

// CreatePrincipal provisions an account with a hashed PIN.
func (s *Service) CreatePrincipal(ctx context.Context, name, pin string, isAdmin bool) (Principal, error) {
	var verr ValidationError
	name = strings.TrimSpace(name)
	if name == "" {
		verr.add("name", "name must not be empty")
	} else if utf8.RuneCountInString(name) > maxTitleLength {
		verr.add("name", fmt.Sprintf("name must be at most %d characters", maxTitleLength))
	}
	if err := ValidatePIN(pin); err != nil {
		verr.add("pin", "PIN must be exactly 4 digits")
	}
	if err := verr.orNil(); err != nil {
		return Principal{}, err
	}

	digest, err := s.hasher.Hash(pin)
	if err != nil {
		return Principal{}, fmt.Errorf("hash pin: %w", err)
	}

	now := s.now().UTC()
	p := Principal{
		ID:        newPrincipalID(),
		Name:      name,
		PINDigest: digest,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertPrincipal(ctx, p); err != nil {
		return Principal{}, fmt.Errorf("insert principal: %w", err)
	}
	return p, nil
}

// Reset deletes every task and ledger entry and zeroes all balances.
// Destructive: callers must confirm with the operator first.
func (s *Service) Reset(ctx context.Context) (ResetStats, error) {
	var stats ResetStats
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		stats, err = tx.Reset(ctx)
		return err
	})
	return stats, err
}

// VerifyLedger reports every principal whose cached balance drifted.
func (s *Service) VerifyLedger(ctx context.Context) ([]BalanceDrift, error) {
	return s.ledger.Verify(ctx)
}
