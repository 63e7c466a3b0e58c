package chores_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chore-engine/auth"
	"github.com/warp/chore-engine/chores"
	"github.com/warp/chore-engine/chores/store"
	"github.com/warp/chore-engine/metrics"
)

func newTestService(t *testing.T, opts ...chores.Option) (*chores.Service, *store.Memory, chores.DemoFamily) {
	t.Helper()

	mem := store.NewMemory()
	hasher, err := auth.NewPINHasher(4)
	require.NoError(t, err)

	svc := chores.NewService(mem, hasher, opts...)
	fam, err := chores.LoadDemoFamily(context.Background(), svc)
	require.NoError(t, err)
	return svc, mem, fam
}

func TestAuthenticate(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()

	t.Run("child PIN", func(t *testing.T) {
		id, err := svc.Authenticate(ctx, chores.DemoChild1PIN)
		require.NoError(t, err)
		assert.Equal(t, fam.Children[0].ID, id.PrincipalID)
		assert.False(t, id.IsAdmin)
	})

	t.Run("admin PIN", func(t *testing.T) {
		id, err := svc.Authenticate(ctx, chores.DemoAdminPIN)
		require.NoError(t, err)
		assert.True(t, id.IsAdmin)
	})

	t.Run("unknown PIN", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "9999")
		assert.ErrorIs(t, err, chores.ErrUnauthorized)
	})

	t.Run("malformed PIN", func(t *testing.T) {
		for _, pin := range []string{"", "123", "12345", "12a4", " 123"} {
			_, err := svc.Authenticate(ctx, pin)
			assert.ErrorIs(t, err, chores.ErrValidation, pin)
		}
	})
}

func TestCompleteTask(t *testing.T) {
	// GIVEN: Child 1 with a 10-point open task
	svc, _, fam := newTestService(t)
	ctx := context.Background()
	child := fam.Children[0]
	task := fam.Tasks[0]

	// WHEN: The child completes it with their PIN
	done, err := svc.CompleteTask(ctx, task.ID, child.ID, chores.DemoChild1PIN)

	// THEN: The task is completed and 10 points are credited exactly once
	require.NoError(t, err)
	assert.Equal(t, int64(10), done.NewBalance)
	assert.Equal(t, chores.TaskCompleted, done.Task.Status)
	require.NotNil(t, done.Task.CompletedAt)

	balance, err := svc.GetBalance(ctx, child.ID, child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	history, err := svc.History(ctx, child.ID, child.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(10), history[0].Amount)
	assert.Equal(t, "Task completed: Tidy up your room", history[0].Reason)
	require.NotNil(t, history[0].TaskID)
	assert.Equal(t, task.ID, *history[0].TaskID)

	// AND: Completing again is a conflict that changes nothing
	_, err = svc.CompleteTask(ctx, task.ID, child.ID, chores.DemoChild1PIN)
	assert.ErrorIs(t, err, chores.ErrConflict)

	balance, _ = svc.GetBalance(ctx, child.ID, child.ID)
	assert.Equal(t, int64(10), balance)

	drifts, err := svc.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestCompleteTask_Rejections(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()
	child1, child2 := fam.Children[0], fam.Children[1]

	t.Run("wrong PIN leaves the task open", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, child1.ID, chores.DemoChild2PIN)
		assert.ErrorIs(t, err, chores.ErrUnauthorized)

		tasks, err := svc.ListTasksFor(ctx, child1.ID, child1.ID)
		require.NoError(t, err)
		assert.Equal(t, chores.TaskOpen, tasks[0].Status)
	})

	t.Run("another child's task", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, fam.Tasks[2].ID, child1.ID, chores.DemoChild1PIN)
		assert.ErrorIs(t, err, chores.ErrForbidden)
	})

	t.Run("admin cannot complete a child's task", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, fam.Tasks[2].ID, fam.Admin.ID, chores.DemoAdminPIN)
		assert.ErrorIs(t, err, chores.ErrForbidden)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, "no-such-task", child2.ID, chores.DemoChild2PIN)
		assert.ErrorIs(t, err, chores.ErrNotFound)
	})

	balance, _ := svc.GetBalance(ctx, child1.ID, fam.Admin.ID)
	assert.Zero(t, balance)
}

func TestCompleteTask_Concurrent(t *testing.T) {
	// GIVEN: One open task
	svc, _, fam := newTestService(t)
	ctx := context.Background()
	child := fam.Children[0]
	task := fam.Tasks[0]

	// WHEN: Several requests race to complete it
	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteTask(ctx, task.ID, child.ID, chores.DemoChild1PIN)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, chores.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly one wins and the points are credited once
	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, conflicts)

	balance, _ := svc.GetBalance(ctx, child.ID, child.ID)
	assert.Equal(t, int64(10), balance)
	history, _ := svc.History(ctx, child.ID, child.ID)
	assert.Len(t, history, 1)
}

var errCommit = errors.New("commit rejected")

// commitFailingStore runs the work of a transaction, then fails it as if
// the commit had been rejected.
type commitFailingStore struct {
	chores.Store
}

func (s commitFailingStore) WithTx(ctx context.Context, fn func(chores.Store) error) error {
	return s.Store.WithTx(ctx, func(tx chores.Store) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestCompleteTask_FailedCommitRecordsNothing(t *testing.T) {
	// GIVEN: A service whose store rejects every commit
	_, mem, fam := newTestService(t)
	hasher, err := auth.NewPINHasher(4)
	require.NoError(t, err)
	svc := chores.NewService(commitFailingStore{mem}, hasher)
	ctx := context.Background()
	child := fam.Children[0]

	credits := testutil.ToFloat64(metrics.LedgerEntries.WithLabelValues("credit"))
	points := testutil.ToFloat64(metrics.PointsMoved.WithLabelValues("credit"))
	completed := testutil.ToFloat64(metrics.TasksCompleted)

	// WHEN: Completing a task
	_, err = svc.CompleteTask(ctx, fam.Tasks[0].ID, child.ID, chores.DemoChild1PIN)

	// THEN: The error surfaces, nothing is stored and no metric moves
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, credits, testutil.ToFloat64(metrics.LedgerEntries.WithLabelValues("credit")))
	assert.Equal(t, points, testutil.ToFloat64(metrics.PointsMoved.WithLabelValues("credit")))
	assert.Equal(t, completed, testutil.ToFloat64(metrics.TasksCompleted))

	entries, err := mem.ListEntries(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	task, err := mem.GetTask(ctx, fam.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, chores.TaskOpen, task.Status)
}

func TestCompleteTask_RecordsCreditOnce(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()

	credits := testutil.ToFloat64(metrics.LedgerEntries.WithLabelValues("credit"))
	points := testutil.ToFloat64(metrics.PointsMoved.WithLabelValues("credit"))

	_, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, fam.Children[0].ID, chores.DemoChild1PIN)
	require.NoError(t, err)

	assert.Equal(t, credits+1, testutil.ToFloat64(metrics.LedgerEntries.WithLabelValues("credit")))
	assert.Equal(t, points+float64(fam.Tasks[0].Points), testutil.ToFloat64(metrics.PointsMoved.WithLabelValues("credit")))
}

// txTrackingStore reports whether a transaction is currently open.
type txTrackingStore struct {
	chores.Store
	inTx *atomic.Bool
}

func (s txTrackingStore) WithTx(ctx context.Context, fn func(chores.Store) error) error {
	return s.Store.WithTx(ctx, func(tx chores.Store) error {
		s.inTx.Store(true)
		defer s.inTx.Store(false)
		return fn(tx)
	})
}

// lockAwareHasher counts Verify calls, and the ones made inside a transaction.
type lockAwareHasher struct {
	chores.Hasher
	inTx      *atomic.Bool
	calls     atomic.Int32
	underLock atomic.Int32
}

func (h *lockAwareHasher) Verify(secret, digest string) bool {
	h.calls.Add(1)
	if h.inTx.Load() {
		h.underLock.Add(1)
	}
	return h.Hasher.Verify(secret, digest)
}

func TestCompleteTask_VerifiesPINOutsideTransaction(t *testing.T) {
	// GIVEN: A service whose hasher knows when a transaction is open
	_, mem, fam := newTestService(t)
	base, err := auth.NewPINHasher(4)
	require.NoError(t, err)
	inTx := &atomic.Bool{}
	hasher := &lockAwareHasher{Hasher: base, inTx: inTx}
	svc := chores.NewService(txTrackingStore{Store: mem, inTx: inTx}, hasher)
	ctx := context.Background()
	child1, child2 := fam.Children[0], fam.Children[1]

	// WHEN: Completing a task
	done, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, child1.ID, chores.DemoChild1PIN)

	// THEN: The PIN was checked once, with no transaction open
	require.NoError(t, err)
	assert.Equal(t, int64(10), done.NewBalance)
	assert.Equal(t, int32(1), hasher.calls.Load())
	assert.Zero(t, hasher.underLock.Load())

	t.Run("task checks come before the PIN", func(t *testing.T) {
		before := hasher.calls.Load()

		_, err := svc.CompleteTask(ctx, "no-such-task", child1.ID, "0000")
		assert.ErrorIs(t, err, chores.ErrNotFound)
		_, err = svc.CompleteTask(ctx, fam.Tasks[2].ID, child1.ID, "0000")
		assert.ErrorIs(t, err, chores.ErrForbidden)
		_, err = svc.CompleteTask(ctx, fam.Tasks[0].ID, child1.ID, "0000")
		assert.ErrorIs(t, err, chores.ErrConflict)

		assert.Equal(t, before, hasher.calls.Load())
	})

	t.Run("wrong PIN on an open task", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, fam.Tasks[2].ID, child2.ID, chores.DemoChild1PIN)
		assert.ErrorIs(t, err, chores.ErrUnauthorized)
		assert.Zero(t, hasher.underLock.Load())
	})
}

func TestChildReads_AccessMasking(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()
	child1, child2 := fam.Children[0], fam.Children[1]

	// Own data and admin access are allowed
	tasks, err := svc.ListTasksFor(ctx, child1.ID, child1.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.True(t, tasks[0].DueAt.Before(tasks[1].DueAt), "soonest due first")

	_, err = svc.ListTasksFor(ctx, child2.ID, fam.Admin.ID)
	require.NoError(t, err)

	// Another child, an admin target and an unknown id look the same
	for _, target := range []chores.PrincipalID{child2.ID, fam.Admin.ID, "nobody"} {
		_, err := svc.ListTasksFor(ctx, target, child1.ID)
		assert.ErrorIs(t, err, chores.ErrNotFound, target)
		_, err = svc.GetBalance(ctx, target, child1.ID)
		assert.ErrorIs(t, err, chores.ErrNotFound, target)
		_, err = svc.History(ctx, target, child1.ID)
		assert.ErrorIs(t, err, chores.ErrNotFound, target)
	}

	// An unknown caller is not authenticated at all
	_, err = svc.ListTasksFor(ctx, child1.ID, "ghost")
	assert.ErrorIs(t, err, chores.ErrUnauthorized)
}

func TestAuthorize(t *testing.T) {
	admin := chores.Principal{ID: "a", IsAdmin: true}
	child := chores.Principal{ID: "c"}

	assert.Equal(t, chores.Allow, chores.Authorize(admin, "c"))
	assert.Equal(t, chores.Allow, chores.Authorize(child, "c"))
	assert.Equal(t, chores.Deny, chores.Authorize(child, "other"))
	assert.Equal(t, "deny", chores.Deny.String())
}

func TestAdminReads(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()

	children, err := svc.ListChildren(ctx, fam.Admin.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Child 1", children[0].Name)
	assert.Equal(t, "Child 2", children[1].Name)

	tasks, err := svc.ListAllTasks(ctx, fam.Admin.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	_, err = svc.ListChildren(ctx, fam.Children[0].ID)
	assert.ErrorIs(t, err, chores.ErrForbidden)
	_, err = svc.ListAllTasks(ctx, fam.Children[0].ID)
	assert.ErrorIs(t, err, chores.ErrForbidden)
}

func TestCreateTask(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()
	child := fam.Children[1]

	task, err := svc.CreateTask(ctx, fam.Admin.ID, chores.TaskDraft{
		OwnerID:     child.ID,
		Title:       "  Walk the dog  ",
		Description: "Around the block",
		Points:      4,
		DueAt:       "2026-11-02T18:30",
	})
	require.NoError(t, err)
	assert.Equal(t, "Walk the dog", task.Title)
	assert.Equal(t, chores.TaskOpen, task.Status)
	assert.Equal(t, time.Date(2026, 11, 2, 18, 30, 0, 0, time.UTC), task.DueAt)

	tasks, err := svc.ListTasksFor(ctx, child.ID, child.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestCreateTask_Validation(t *testing.T) {
	svc, _, fam := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		draft  chores.TaskDraft
		fields []string
	}{
		{
			name:   "everything missing",
			draft:  chores.TaskDraft{},
			fields: []string{"childId", "title", "points", "dueDate"},
		},
		{
			name:   "admin as owner",
			draft:  chores.TaskDraft{OwnerID: fam.Admin.ID, Title: "x", Points: 1, DueAt: "2026-11-01"},
			fields: []string{"childId"},
		},
		{
			name:   "unknown owner",
			draft:  chores.TaskDraft{OwnerID: "nobody", Title: "x", Points: 1, DueAt: "2026-11-01"},
			fields: []string{"childId"},
		},
		{
			name:   "title too long",
			draft:  chores.TaskDraft{OwnerID: fam.Children[0].ID, Title: strings.Repeat("é", 256), Points: 1, DueAt: "2026-11-01"},
			fields: []string{"title"},
		},
		{
			name:   "negative points and bad date",
			draft:  chores.TaskDraft{OwnerID: fam.Children[0].ID, Title: "x", Points: -3, DueAt: "soon"},
			fields: []string{"points", "dueDate"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTask(ctx, fam.Admin.ID, tc.draft)
			require.ErrorIs(t, err, chores.ErrValidation)

			var verr *chores.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Fields, len(tc.fields))
			for _, f := range tc.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}

	t.Run("255 multibyte characters are accepted", func(t *testing.T) {
		_, err := svc.CreateTask(ctx, fam.Admin.ID, chores.TaskDraft{
			OwnerID: fam.Children[0].ID, Title: strings.Repeat("é", 255), Points: 1, DueAt: "2026-11-01",
		})
		assert.NoError(t, err)
	})

	t.Run("child cannot create tasks", func(t *testing.T) {
		_, err := svc.CreateTask(ctx, fam.Children[0].ID, chores.TaskDraft{
			OwnerID: fam.Children[0].ID, Title: "x", Points: 100, DueAt: "2026-11-01",
		})
		assert.ErrorIs(t, err, chores.ErrForbidden)
	})
}

func TestDeleteTask_KeepsLedger(t *testing.T) {
	// GIVEN: A completed task
	svc, _, fam := newTestService(t)
	ctx := context.Background()
	child := fam.Children[0]
	task := fam.Tasks[0]
	_, err := svc.CompleteTask(ctx, task.ID, child.ID, chores.DemoChild1PIN)
	require.NoError(t, err)

	// WHEN: The admin deletes it
	require.NoError(t, svc.DeleteTask(ctx, fam.Admin.ID, task.ID))

	// THEN: The entry and balance remain, without the task reference
	history, err := svc.History(ctx, child.ID, child.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].TaskID)

	balance, _ := svc.GetBalance(ctx, child.ID, child.ID)
	assert.Equal(t, int64(10), balance)

	assert.ErrorIs(t, svc.DeleteTask(ctx, fam.Admin.ID, task.ID), chores.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteTask(ctx, child.ID, fam.Tasks[1].ID), chores.ErrForbidden)
}

func TestSubscribe(t *testing.T) {
	svc, mem, fam := newTestService(t)
	ctx := context.Background()
	child := fam.Children[0]

	err := svc.Subscribe(ctx, child.ID, chores.Subscription{Endpoint: "https://push.example/1"})
	assert.ErrorIs(t, err, chores.ErrValidation)

	sub := chores.Subscription{
		Endpoint: "https://push.example/1",
		Keys:     chores.SubscriptionKeys{P256dh: "key", Auth: "secret"},
	}
	require.NoError(t, svc.Subscribe(ctx, child.ID, sub))

	p, err := mem.GetPrincipal(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, p.PushSubscription)
	assert.Equal(t, sub, *p.PushSubscription)

	require.NoError(t, svc.Unsubscribe(ctx, child.ID))
	p, _ = mem.GetPrincipal(ctx, child.ID)
	assert.Nil(t, p.PushSubscription)

	assert.ErrorIs(t, svc.Subscribe(ctx, "ghost", sub), chores.ErrUnauthorized)
}

func TestCreatePrincipal_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePrincipal(ctx, "  ", "12", false)
	var verr *chores.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "pin")

	p, err := svc.CreatePrincipal(ctx, "Sam", "4321", false)
	require.NoError(t, err)
	assert.Equal(t, "child", p.Role())
	assert.NotEqual(t, "4321", p.PINDigest)
}

func TestReset(t *testing.T) {
	svc, mem, fam := newTestService(t)
	ctx := context.Background()
	child := fam.Children[0]
	_, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, child.ID, chores.DemoChild1PIN)
	require.NoError(t, err)

	stats, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.EntriesDeleted)
	assert.Equal(t, int64(3), stats.TasksDeleted)
	assert.Equal(t, int64(3), stats.PrincipalsZeroed)

	p, _ := mem.GetPrincipal(ctx, child.ID)
	assert.Zero(t, p.Balance)

	// Accounts survive
	_, err = svc.Authenticate(ctx, chores.DemoChild1PIN)
	assert.NoError(t, err)
}

func TestParseDueDate(t *testing.T) {
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-03-04",
		"2026-03-04T00:00",
		"2026-03-04T00:00:00",
		"2026-03-04 00:00:00",
		"2026-03-04T00:00:00Z",
		"2026-03-04T01:00:00+01:00",
	} {
		got, err := chores.ParseDueDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := chores.ParseDueDate("03/04/2026")
	assert.Error(t, err)
}
