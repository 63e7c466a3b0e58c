package chores_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chore-engine/auth"
	"github.com/warp/chore-engine/chores"
	"github.com/warp/chore-engine/chores/store"
)

// fakeNotifier records messages and answers with a fixed outcome. When
// release is set, Send signals started and blocks until release is closed.
type fakeNotifier struct {
	mu       sync.Mutex
	outcome  chores.Outcome
	err      error
	panics   bool
	messages []chores.Message

	started chan chores.Subscription
	release chan struct{}
}

func (f *fakeNotifier) Send(_ context.Context, sub chores.Subscription, msg chores.Message) (chores.Outcome, error) {
	if f.panics {
		panic("push exploded")
	}
	if f.release != nil {
		f.started <- sub
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.outcome, f.err
}

func (f *fakeNotifier) sent() []chores.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chores.Message(nil), f.messages...)
}

// newNotifyingService builds a service whose children are all subscribed.
func newNotifyingService(t *testing.T, n *fakeNotifier) (*chores.Service, *store.Memory, *chores.Dispatcher, chores.DemoFamily) {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	hasher, err := auth.NewPINHasher(4)
	require.NoError(t, err)
	d := chores.NewDispatcher(n, mem, time.Second)
	svc := chores.NewService(mem, hasher, chores.WithDispatcher(d))

	fam, err := chores.LoadDemoFamily(ctx, svc)
	require.NoError(t, err)
	d.Wait()

	for _, c := range fam.Children {
		require.NoError(t, svc.Subscribe(ctx, c.ID, chores.Subscription{
			Endpoint: "https://push.example/" + string(c.ID),
			Keys:     chores.SubscriptionKeys{P256dh: "key", Auth: "secret"},
		}))
	}
	return svc, mem, d, fam
}

func TestDispatcher_CompletionNotifies(t *testing.T) {
	n := &fakeNotifier{outcome: chores.OutcomeSent}
	svc, _, d, fam := newNotifyingService(t, n)
	ctx := context.Background()

	_, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, fam.Children[0].ID, chores.DemoChild1PIN)
	require.NoError(t, err)
	d.Wait()

	msgs := n.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Points earned!", msgs[0].Title)
	assert.Equal(t, "+10 points: Tidy up your room", msgs[0].Body)
}

func TestDispatcher_NewTaskNotifies(t *testing.T) {
	n := &fakeNotifier{outcome: chores.OutcomeSent}
	svc, _, d, fam := newNotifyingService(t, n)

	_, err := svc.CreateTask(context.Background(), fam.Admin.ID, chores.TaskDraft{
		OwnerID: fam.Children[1].ID, Title: "Water the plants", Points: 2, DueAt: "2026-11-01",
	})
	require.NoError(t, err)
	d.Wait()

	msgs := n.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "New task!", msgs[0].Title)
	assert.Equal(t, "Water the plants", msgs[0].Body)
}

func TestDispatcher_GoneClearsSubscription(t *testing.T) {
	// GIVEN: A push service that says the subscription expired
	n := &fakeNotifier{outcome: chores.OutcomeGone}
	svc, mem, d, fam := newNotifyingService(t, n)
	ctx := context.Background()
	child := fam.Children[0]

	// WHEN: A notification is sent
	_, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, child.ID, chores.DemoChild1PIN)
	require.NoError(t, err)
	d.Wait()

	// THEN: The subscription is dropped; the other child's is kept
	p, err := mem.GetPrincipal(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, p.PushSubscription)

	other, _ := mem.GetPrincipal(ctx, fam.Children[1].ID)
	assert.NotNil(t, other.PushSubscription)
}

func TestDispatcher_GoneKeepsReplacedSubscription(t *testing.T) {
	// GIVEN: A send to the old endpoint that is still in flight
	n := &fakeNotifier{
		outcome: chores.OutcomeGone,
		started: make(chan chores.Subscription, 1),
		release: make(chan struct{}),
	}
	mem := store.NewMemory()
	hasher, err := auth.NewPINHasher(4)
	require.NoError(t, err)
	d := chores.NewDispatcher(n, mem, 5*time.Second)
	svc := chores.NewService(mem, hasher)
	ctx := context.Background()

	fam, err := chores.LoadDemoFamily(ctx, svc)
	require.NoError(t, err)
	child := fam.Children[0]
	old := chores.Subscription{
		Endpoint: "https://push/old",
		Keys:     chores.SubscriptionKeys{P256dh: "key", Auth: "secret"},
	}
	require.NoError(t, svc.Subscribe(ctx, child.ID, old))
	p, err := mem.GetPrincipal(ctx, child.ID)
	require.NoError(t, err)

	d.Notify(ctx, *p, chores.Message{Title: "Points earned!"})
	sent := <-n.started
	assert.Equal(t, "https://push/old", sent.Endpoint)

	// WHEN: The child re-subscribes, then the push service reports the old one gone
	require.NoError(t, svc.Subscribe(ctx, child.ID, chores.Subscription{
		Endpoint: "https://push/new",
		Keys:     chores.SubscriptionKeys{P256dh: "key2", Auth: "secret2"},
	}))
	close(n.release)
	d.Wait()

	// THEN: The new subscription survives
	p, err = mem.GetPrincipal(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, p.PushSubscription)
	assert.Equal(t, "https://push/new", p.PushSubscription.Endpoint)
}

func TestDispatcher_FailureDoesNotFailCompletion(t *testing.T) {
	for name, n := range map[string]*fakeNotifier{
		"error": {outcome: chores.OutcomeFailed, err: errors.New("push service down")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			svc, mem, d, fam := newNotifyingService(t, n)
			ctx := context.Background()
			child := fam.Children[0]

			done, err := svc.CompleteTask(ctx, fam.Tasks[0].ID, child.ID, chores.DemoChild1PIN)
			require.NoError(t, err)
			assert.Equal(t, int64(10), done.NewBalance)
			d.Wait()

			p, _ := mem.GetPrincipal(ctx, child.ID)
			assert.Equal(t, int64(10), p.Balance)
			assert.NotNil(t, p.PushSubscription, "failures keep the subscription")
		})
	}
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *chores.Dispatcher
	d.Notify(context.Background(), chores.Principal{}, chores.Message{Title: "x"})
	d.Wait()
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "sent", chores.OutcomeSent.String())
	assert.Equal(t, "gone", chores.OutcomeGone.String())
	assert.Equal(t, "failed", chores.OutcomeFailed.String())
	assert.Equal(t, "skipped", chores.OutcomeSkipped.String())
}
