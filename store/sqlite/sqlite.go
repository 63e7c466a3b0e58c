/*
Package sqlite provides a SQLite-backed implementation of chores.Store.

KEY TABLES:
  principals:      Accounts with PIN digest and cached point balance
  tasks:           Point-valued assignments, open -> completed
  ledger_entries:  Immutable log of balance changes

APPEND-ONLY ENFORCEMENT:
  - The store never issues UPDATE or DELETE on ledger amounts or reasons
  - A trigger aborts any UPDATE of amount, reason, principal_id or created_at
  - task_id is ON DELETE SET NULL, so deleting a task keeps its entries

CONCURRENCY:
  Transactions begin IMMEDIATE (_txlock=immediate): the write lock is taken
  up front, so two completions of the same task serialize and the second
  one reads the committed status. The busy timeout makes the second writer
  wait instead of failing. MarkTaskCompleted is also conditional on
  status = 'open' and reports zero affected rows as "not updated".

  ":memory:" databases exist per connection, so they are pinned to a single
  connection.

WAL MODE:
  File databases are opened with WAL so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/chores.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/chore-engine/chores"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements chores.Store using SQLite.
type Store struct {
	db *sql.DB
	q  queryer
	tx *sql.Tx // non-nil when bound to a transaction
}

var _ chores.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(dbPath) {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS principals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pin_digest TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		balance INTEGER NOT NULL DEFAULT 0,
		push_subscription TEXT,
		push_updated_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		points INTEGER NOT NULL CHECK (points >= 1),
		due_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'completed')),
		completed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK ((status = 'completed') = (completed_at IS NOT NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner_due
		ON tasks(owner_id, due_at);

	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		task_id TEXT REFERENCES tasks(id) ON DELETE SET NULL,
		amount INTEGER NOT NULL CHECK (amount != 0),
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_principal
		ON ledger_entries(principal_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_task
		ON ledger_entries(task_id) WHERE task_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS ledger_entries_immutable
		BEFORE UPDATE OF amount, reason, principal_id, created_at ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger entries are immutable');
	END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. On a Store that is
// already bound to a transaction, fn joins it.
func (s *Store) WithTx(ctx context.Context, fn func(chores.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// PRINCIPALS
// =============================================================================

const principalColumns = `id, name, pin_digest, is_admin, balance, push_subscription, push_updated_at, created_at, updated_at`

// ListPrincipals returns all principals in insertion order.
func (s *Store) ListPrincipals(ctx context.Context) ([]chores.Principal, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+principalColumns+" FROM principals ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var principals []chores.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// GetPrincipal retrieves a principal by ID. Returns nil if absent.
func (s *Store) GetPrincipal(ctx context.Context, id chores.PrincipalID) (*chores.Principal, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE id = ?", id)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPrincipal saves a new principal.
func (s *Store) InsertPrincipal(ctx context.Context, p chores.Principal) error {
	sub, err := encodeSubscription(p.PushSubscription)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO principals
		(id, name, pin_digest, is_admin, balance, push_subscription, push_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.PINDigest, p.IsAdmin, p.Balance,
		sub, formatTimePtr(p.PushUpdatedAt),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert principal: %w", err)
	}
	return nil
}

// AddToBalance increments the cached balance and returns the new value.
func (s *Store) AddToBalance(ctx context.Context, id chores.PrincipalID, delta int64, at time.Time) (int64, error) {
	var balance int64
	err := s.q.QueryRowContext(ctx, `
		UPDATE principals SET balance = balance + ?, updated_at = ?
		WHERE id = ?
		RETURNING balance
	`, delta, formatTime(at), id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, chores.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}
	return balance, nil
}

// SetSubscription stores the push subscription, or clears it when sub is nil.
func (s *Store) SetSubscription(ctx context.Context, id chores.PrincipalID, sub *chores.Subscription, at time.Time) error {
	encoded, err := encodeSubscription(sub)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE principals SET push_subscription = ?, push_updated_at = ?, updated_at = ?
		WHERE id = ?
	`, encoded, formatTime(at), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chores.ErrNotFound
	}
	return nil
}

// ClearSubscription removes the push subscription if it still targets
// endpoint. A subscription replaced in the meantime is left alone.
func (s *Store) ClearSubscription(ctx context.Context, id chores.PrincipalID, endpoint string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE principals SET push_subscription = NULL, push_updated_at = ?, updated_at = ?
		WHERE id = ? AND json_extract(push_subscription, '$.endpoint') = ?
	`, formatTime(at), formatTime(at), id, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to clear subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// TASKS
// =============================================================================

const taskColumns = `id, owner_id, title, description, points, due_at, status, completed_at, created_at, updated_at`

// GetTask retrieves a task by ID. Returns nil if absent.
func (s *Store) GetTask(ctx context.Context, id chores.TaskID) (*chores.Task, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasksByOwner returns an owner's tasks, soonest due first.
func (s *Store) ListTasksByOwner(ctx context.Context, owner chores.PrincipalID) ([]chores.Task, error) {
	return s.queryTasks(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE owner_id = ? ORDER BY due_at ASC, rowid ASC", owner)
}

// ListTasks returns every task in creation order.
func (s *Store) ListTasks(ctx context.Context) ([]chores.Task, error) {
	return s.queryTasks(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY rowid ASC")
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]chores.Task, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []chores.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// InsertTask saves a new task.
func (s *Store) InsertTask(ctx context.Context, t chores.Task) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tasks
		(id, owner_id, title, description, points, due_at, status, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OwnerID, t.Title, nullString(t.Description), t.Points,
		formatTime(t.DueAt), t.Status, formatTimePtr(t.CompletedAt),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// MarkTaskCompleted moves an open task to completed. Returns false if the
// task is missing or no longer open.
func (s *Store) MarkTaskCompleted(ctx context.Context, id chores.TaskID, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'open'
	`, formatTime(at), formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteTask detaches the task's ledger entries and removes the task.
func (s *Store) DeleteTask(ctx context.Context, id chores.TaskID) (bool, error) {
	if _, err := s.q.ExecContext(ctx,
		"UPDATE ledger_entries SET task_id = NULL WHERE task_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to detach ledger entries: %w", err)
	}

	res, err := s.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// AppendEntry adds an entry to the ledger. This is the only write on entries.
func (s *Store) AppendEntry(ctx context.Context, e chores.LedgerEntry) error {
	var taskID sql.NullString
	if e.TaskID != nil {
		taskID = sql.NullString{String: string(*e.TaskID), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, principal_id, task_id, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.PrincipalID, taskID, e.Amount, e.Reason, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ListEntries returns a principal's entries, oldest first.
func (s *Store) ListEntries(ctx context.Context, principal chores.PrincipalID) ([]chores.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, principal_id, task_id, amount, reason, created_at
		FROM ledger_entries
		WHERE principal_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, principal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []chores.LedgerEntry
	for rows.Next() {
		var (
			e         chores.LedgerEntry
			taskID    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.PrincipalID, &taskID, &e.Amount, &e.Reason, &createdAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			id := chores.TaskID(taskID.String)
			e.TaskID = &id
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEntries recomputes a principal's balance from the ledger.
func (s *Store) SumEntries(ctx context.Context, principal chores.PrincipalID) (int64, error) {
	var sum int64
	err := s.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE principal_id = ?",
		principal,
	).Scan(&sum)
	return sum, err
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset deletes all ledger entries and tasks and zeroes every balance.
func (s *Store) Reset(ctx context.Context) (chores.ResetStats, error) {
	var stats chores.ResetStats

	steps := []struct {
		query string
		count *int64
	}{
		{"DELETE FROM ledger_entries", &stats.EntriesDeleted},
		{"DELETE FROM tasks", &stats.TasksDeleted},
		{"UPDATE principals SET balance = 0", &stats.PrincipalsZeroed},
	}
	for _, step := range steps {
		res, err := s.q.ExecContext(ctx, step.query)
		if err != nil {
			return stats, fmt.Errorf("reset: %w", err)
		}
		*step.count, _ = res.RowsAffected()
	}
	return stats, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row scanner) (chores.Principal, error) {
	var (
		p                    chores.Principal
		sub, pushUpdatedAt   sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PINDigest, &p.IsAdmin, &p.Balance,
		&sub, &pushUpdatedAt, &createdAt, &updatedAt); err != nil {
		return p, err
	}

	if sub.Valid && sub.String != "" {
		var decoded chores.Subscription
		if err := json.Unmarshal([]byte(sub.String), &decoded); err != nil {
			return p, fmt.Errorf("decode push subscription: %w", err)
		}
		p.PushSubscription = &decoded
	}
	var err error
	if p.PushUpdatedAt, err = parseTimePtr(pushUpdatedAt); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}
	return p, nil
}

func scanTask(row scanner) (chores.Task, error) {
	var (
		t                           chores.Task
		description, completedAt    sql.NullString
		dueAt, createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &description, &t.Points,
		&dueAt, &t.Status, &completedAt, &createdAt, &updatedAt); err != nil {
		return t, err
	}
	t.Description = description.String
	var err error
	if t.DueAt, err = parseTime(dueAt); err != nil {
		return t, err
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, err
	}
	return t, nil
}

func encodeSubscription(sub *chores.Subscription) (sql.NullString, error) {
	if sub == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode push subscription: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
