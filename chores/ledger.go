/*
ledger.go - Point ledger: append-only log plus cached balance

PURPOSE:
  The ledger is the source of truth for every point balance change. Each
  principal also carries a cached Balance so reads stay cheap. Credit is the
  single command that touches both, inside one transaction, so the cache
  can never drift from the log.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted by this package
  2. NONZERO: every entry moves the balance (Amount != 0)
  3. CONSISTENT: Balance == sum(entries.Amount) after every commit

NEGATIVE AMOUNTS:
  Allowed (penalties). Balances may go below zero.

SEE ALSO:
  - store.go: Low-level persistence interface
  - task.go: Completion credits points through Credit
*/
package chores

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Credit describes one balance change.
type Credit struct {
	PrincipalID PrincipalID
	Amount      int64
	Reason      string
	TaskID      *TaskID
}

// BalanceDrift reports a principal whose cached balance disagrees with the ledger.
type BalanceDrift struct {
	PrincipalID PrincipalID
	Name        string
	Cached      int64
	Ledger      int64
}

// Ledger appends entries and maintains the cached balances.
type Ledger struct {
	Store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, now: time.Now}
}

// withStore returns a ledger bound to a transactional store.
func (l *Ledger) withStore(s Store) *Ledger {
	return &Ledger{Store: s, now: l.now}
}

// Credit appends an entry and applies it to the principal's balance in its
// own transaction.
func (l *Ledger) Credit(ctx context.Context, c Credit) (LedgerEntry, int64, error) {
	entry, balance, err := l.apply(ctx, c)
	if err != nil {
		return LedgerEntry{}, 0, err
	}
	recordCredit(c.Amount)
	return entry, balance, nil
}

// apply does the work of Credit without recording metrics. It joins the
// caller's transaction when l.Store is already transactional, in which case
// the caller records the credit once its own commit succeeds.
func (l *Ledger) apply(ctx context.Context, c Credit) (LedgerEntry, int64, error) {
	if c.Amount == 0 {
		return LedgerEntry{}, 0, ErrInvalidAmount
	}
	reason := strings.TrimSpace(c.Reason)
	if reason == "" {
		return LedgerEntry{}, 0, fieldError("reason", "reason must not be empty")
	}

	var (
		entry   LedgerEntry
		balance int64
	)
	err := l.Store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetPrincipal(ctx, c.PrincipalID)
		if err != nil {
			return fmt.Errorf("load principal: %w", err)
		}
		if p == nil {
			return ErrNotFound
		}

		now := l.now().UTC()
		entry = LedgerEntry{
			ID:          newEntryID(),
			PrincipalID: c.PrincipalID,
			TaskID:      c.TaskID,
			Amount:      c.Amount,
			Reason:      reason,
			CreatedAt:   now,
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		balance, err = tx.AddToBalance(ctx, c.PrincipalID, c.Amount, now)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return LedgerEntry{}, 0, err
	}
	return entry, balance, nil
}

// Entries returns the principal's ledger, oldest first. Read-only.
func (l *Ledger) Entries(ctx context.Context, id PrincipalID) ([]LedgerEntry, error) {
	return l.Store.ListEntries(ctx, id)
}

// Verify recomputes every balance from the ledger and reports mismatches.
func (l *Ledger) Verify(ctx context.Context) ([]BalanceDrift, error) {
	principals, err := l.Store.ListPrincipals(ctx)
	if err != nil {
		return nil, err
	}

	var drifts []BalanceDrift
	for _, p := range principals {
		sum, err := l.Store.SumEntries(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if sum != p.Balance {
			drifts = append(drifts, BalanceDrift{
				PrincipalID: p.ID,
				Name:        p.Name,
				Cached:      p.Balance,
				Ledger:      sum,
			})
		}
	}
	return drifts, nil
}
