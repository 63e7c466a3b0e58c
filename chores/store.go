/*
store.go - Persistence interface for principals, tasks and the ledger

PURPOSE:
  Defines the boundary between the chore engine and the database. One Store
  value is injected into Service and Ledger; nothing in this package reaches
  for a global handle.

TRANSACTIONS:
  WithTx runs fn against a Store bound to a single database transaction.
  fn returning an error rolls everything back; returning nil commits.
  Calling WithTx on a Store that is already transactional joins the
  running transaction, so Ledger.Credit can be used both standalone and
  inside a task completion.

APPEND-ONLY LEDGER:
  AppendEntry is the only write on ledger entries. DetachTask (run by
  DeleteTask) nulls an entry's task reference and nothing else.

LOOKUPS:
  Get* methods return (nil, nil) when the row does not exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - chores/store/memory.go: In-memory for testing
*/
package chores

import (
	"context"
	"time"
)

// Store handles persistence for the chore engine.
type Store interface {
	// WithTx executes fn within a transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Principals

	// ListPrincipals returns every principal in insertion order.
	ListPrincipals(ctx context.Context) ([]Principal, error)
	GetPrincipal(ctx context.Context, id PrincipalID) (*Principal, error)
	InsertPrincipal(ctx context.Context, p Principal) error
	// AddToBalance increments the cached balance and returns the new value.
	AddToBalance(ctx context.Context, id PrincipalID, delta int64, at time.Time) (int64, error)
	// SetSubscription stores or (with nil) clears the push subscription.
	SetSubscription(ctx context.Context, id PrincipalID, sub *Subscription, at time.Time) error
	// ClearSubscription removes the subscription only while it still points
	// at endpoint. Returns false when nothing was cleared.
	ClearSubscription(ctx context.Context, id PrincipalID, endpoint string, at time.Time) (bool, error)

	// Tasks

	GetTask(ctx context.Context, id TaskID) (*Task, error)
	// ListTasksByOwner returns the owner's tasks ordered by due date.
	ListTasksByOwner(ctx context.Context, owner PrincipalID) ([]Task, error)
	ListTasks(ctx context.Context) ([]Task, error)
	InsertTask(ctx context.Context, t Task) error
	// MarkTaskCompleted performs Open -> Completed only if the task is still
	// open. Returns false when no open task was updated.
	MarkTaskCompleted(ctx context.Context, id TaskID, at time.Time) (bool, error)
	// DeleteTask detaches ledger entries from the task, then removes it.
	// Returns false if the task did not exist.
	DeleteTask(ctx context.Context, id TaskID) (bool, error)

	// Ledger

	AppendEntry(ctx context.Context, e LedgerEntry) error
	// ListEntries returns a principal's entries, oldest first.
	ListEntries(ctx context.Context, principal PrincipalID) ([]LedgerEntry, error)
	SumEntries(ctx context.Context, principal PrincipalID) (int64, error)

	// Reset deletes all entries and tasks and zeroes every balance.
	Reset(ctx context.Context) (ResetStats, error)
}

// ResetStats reports what Store.Reset removed.
type ResetStats struct {
	EntriesDeleted   int64
	TasksDeleted     int64
	PrincipalsZeroed int64
}
