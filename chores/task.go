/*
task.go - Task lifecycle: creation, completion, deletion

STATE MACHINE:
  open --complete--> completed   (terminal)

  Completing a completed task is an error (ErrConflict), never a no-op, so
  a retried request surfaces the conflict instead of paying out twice.

COMPLETION:
  1. task exists                        else ErrNotFound
  2. task belongs to the requester      else ErrForbidden (admins included)
  3. task is open                       else ErrConflict
  4. PIN verifies for the requester     else ErrUnauthorized
  5. one transaction: re-check 1-3, conditional status write, ledger credit
  The PIN hash is checked before the write transaction starts, so bcrypt
  never runs while the database write lock is held. The conditional write
  (open -> completed only) is what makes two racing completions safe: the
  loser updates zero rows and gets ErrConflict.

NOTIFICATIONS:
  Sent after commit via the Dispatcher. Never inside the transaction.
*/
package chores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/warp/chore-engine/metrics"
)

const maxTitleLength = 255

// dueDateLayouts are the accepted due date formats, most specific first.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TaskDraft is the input to CreateTask.
type TaskDraft struct {
	OwnerID     PrincipalID
	Title       string
	Description string
	Points      int64
	DueAt       string
}

// Completion is the result of a successful CompleteTask.
type Completion struct {
	Task        Task
	NewBalance  int64
	CompletedAt time.Time
}

// ParseDueDate accepts RFC 3339 timestamps and plain dates.
// Values without a zone are read as UTC.
func ParseDueDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// =============================================================================
// COMPLETE
// =============================================================================

// CompleteTask marks an open task completed and credits its points to the owner.
func (s *Service) CompleteTask(ctx context.Context, taskID TaskID, requesterID PrincipalID, pin string) (Completion, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return Completion{}, fmt.Errorf("load task: %w", err)
	}
	if err := checkCompletable(task, requesterID); err != nil {
		return completionFailed(err)
	}

	actor, err := s.store.GetPrincipal(ctx, requesterID)
	if err != nil {
		return Completion{}, fmt.Errorf("load principal: %w", err)
	}
	if actor == nil || !s.hasher.Verify(pin, actor.PINDigest) {
		return Completion{}, ErrUnauthorized
	}

	var result Completion
	err = s.store.WithTx(ctx, func(tx Store) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		if err := checkCompletable(task, requesterID); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := task.Complete(now); err != nil {
			return err
		}
		updated, err := tx.MarkTaskCompleted(ctx, task.ID, now)
		if err != nil {
			return fmt.Errorf("mark task completed: %w", err)
		}
		if !updated {
			return ErrConflict
		}

		_, balance, err := s.ledger.withStore(tx).apply(ctx, Credit{
			PrincipalID: actor.ID,
			Amount:      task.Points,
			Reason:      "Task completed: " + task.Title,
			TaskID:      &task.ID,
		})
		if err != nil {
			return err
		}

		result = Completion{Task: *task, NewBalance: balance, CompletedAt: now}
		return nil
	})
	if err != nil {
		return completionFailed(err)
	}

	recordCredit(result.Task.Points)
	metrics.TasksCompleted.Inc()

	owner := *actor
	owner.Balance = result.NewBalance
	s.notifier.Notify(ctx, owner, Message{
		Title: "Points earned!",
		Body:  fmt.Sprintf("+%d points: %s", result.Task.Points, result.Task.Title),
		URL:   "/",
	})
	return result, nil
}

// checkCompletable checks a loaded task against the requester, in error order.
func checkCompletable(task *Task, requesterID PrincipalID) error {
	switch {
	case task == nil:
		return ErrNotFound
	case task.OwnerID != requesterID:
		return ErrForbidden
	case task.Status != TaskOpen:
		return ErrConflict
	}
	return nil
}

func completionFailed(err error) (Completion, error) {
	if errors.Is(err, ErrConflict) {
		metrics.CompletionConflicts.Inc()
	}
	return Completion{}, err
}

// =============================================================================
// CREATE
// =============================================================================

// CreateTask validates the draft and stores a new open task. Admin only.
// Every invalid field is reported, not just the first.
func (s *Service) CreateTask(ctx context.Context, requesterID PrincipalID, draft TaskDraft) (Task, error) {
	if _, err := requireAdmin(ctx, s.store, requesterID); err != nil {
		return Task{}, err
	}

	var verr ValidationError
	var owner *Principal
	if draft.OwnerID == "" {
		verr.add("childId", "childId is required")
	} else {
		p, err := s.store.GetPrincipal(ctx, draft.OwnerID)
		if err != nil {
			return Task{}, fmt.Errorf("load owner: %w", err)
		}
		switch {
		case p == nil:
			verr.add("childId", "child not found")
		case p.IsAdmin:
			verr.add("childId", "user is not a child")
		default:
			owner = p
		}
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		verr.add("title", "title must not be empty")
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		verr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	if draft.Points < 1 {
		verr.add("points", "points must be at least 1")
	}

	var due time.Time
	if strings.TrimSpace(draft.DueAt) == "" {
		verr.add("dueDate", "due date is required")
	} else if t, err := ParseDueDate(draft.DueAt); err != nil {
		verr.add("dueDate", "invalid date format")
	} else {
		due = t
	}

	if err := verr.orNil(); err != nil {
		return Task{}, err
	}

	now := s.now().UTC()
	task := Task{
		ID:          newTaskID(),
		OwnerID:     owner.ID,
		Title:       title,
		Description: strings.TrimSpace(draft.Description),
		Points:      draft.Points,
		DueAt:       due,
		Status:      TaskOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	s.notifier.Notify(ctx, *owner, Message{Title: "New task!", Body: task.Title, URL: "/"})
	return task, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteTask removes a task. Admin only. Ledger entries that reference it
// stay, with their task reference cleared.
func (s *Service) DeleteTask(ctx context.Context, requesterID PrincipalID, taskID TaskID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		if _, err := requireAdmin(ctx, tx, requesterID); err != nil {
			return err
		}
		deleted, err := tx.DeleteTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
}
