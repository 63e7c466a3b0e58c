/*
Package chores provides the household chore and point ledger engine.

PURPOSE:
  Guardians (admins) assign point-valued tasks to children. Children sign in
  with a 4-digit PIN, complete their tasks, and earn points. Every balance
  change is recorded in an append-only ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Principal: an account, admin or child, with a cached point balance
  - Task: a point-valued assignment, Open -> Completed
  - LedgerEntry: an immutable record of a balance change
  - Subscription: a Web Push subscription descriptor

DESIGN PRINCIPLES:
  1. The ledger is the source of truth; Principal.Balance is a cache of it
  2. Entries are never modified or removed, only appended
  3. Identifiers are typed so principal and task IDs cannot be mixed up

SEE ALSO:
  - ledger.go: Credit, the only write path for balances
  - task.go: Task completion state machine
  - service.go: Boundary operations used by the HTTP and CLI layers
*/
package chores

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PrincipalID string
type TaskID string
type EntryID string

func newPrincipalID() PrincipalID { return PrincipalID(uuid.NewString()) }
func newTaskID() TaskID           { return TaskID(uuid.NewString()) }
func newEntryID() EntryID         { return EntryID(uuid.NewString()) }

// =============================================================================
// PRINCIPAL
// =============================================================================

// Principal is an account: a guardian (IsAdmin) or a child.
//
// INVARIANT: Balance == sum of Amount over all ledger entries owned by this
// principal. Balance is only ever changed through Ledger.Credit.
type Principal struct {
	ID               PrincipalID
	Name             string
	PINDigest        string
	IsAdmin          bool
	Balance          int64
	PushSubscription *Subscription
	PushUpdatedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Role returns "admin" or "child".
func (p Principal) Role() string {
	if p.IsAdmin {
		return "admin"
	}
	return "child"
}

// Identity is what a successful PIN check reveals about a principal.
type Identity struct {
	PrincipalID PrincipalID
	Name        string
	IsAdmin     bool
}

// Subscription is a Web Push subscription as handed out by the browser.
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// =============================================================================
// TASK
// =============================================================================

type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskCompleted TaskStatus = "completed"
)

// Task is a point-valued assignment owned by exactly one child.
//
// INVARIANTS:
//   - CompletedAt != nil if and only if Status == TaskCompleted
//   - Status only moves Open -> Completed, never back, never twice
//   - Points >= 1
type Task struct {
	ID          TaskID
	OwnerID     PrincipalID
	Title       string
	Description string
	Points      int64
	DueAt       time.Time
	Status      TaskStatus
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Complete applies the single state transition on the in-memory value.
// Persisting it is the store's job (see Store.MarkTaskCompleted).
func (t *Task) Complete(at time.Time) error {
	if t.Status != TaskOpen {
		return ErrConflict
	}
	t.Status = TaskCompleted
	t.CompletedAt = &at
	t.UpdatedAt = at
	return nil
}

// =============================================================================
// LEDGER ENTRY
// =============================================================================

// LedgerEntry records one balance change. Immutable once written.
// TaskID is a non-owning reference; it becomes nil when the task is deleted.
type LedgerEntry struct {
	ID          EntryID
	PrincipalID PrincipalID
	TaskID      *TaskID
	Amount      int64
	Reason      string
	CreatedAt   time.Time
}
