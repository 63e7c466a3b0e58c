/*
notify.go - Best-effort notifications after a commit

PURPOSE:
  Tells a principal about task and ledger events (new task, points earned).
  Delivery is strictly best-effort: it runs after the database transaction
  has committed, on its own goroutine, and its result never reaches the
  caller of the operation that triggered it.

FEEDBACK LOOP:
  The only effect a notification can have on stored state: when the push
  service reports the subscription is gone, the principal's subscription is
  cleared in a separate commit. The clear only matches the endpoint that was
  sent to, so a subscription registered while the send was in flight stays.
*/
package chores

import (
	"context"
	"log"
	"sync"
	"time"
)

// Message is the payload shown to the user.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota
	// OutcomeGone means the subscription no longer exists and should be dropped.
	OutcomeGone
	OutcomeFailed
	// OutcomeSkipped means there was nothing to send to.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeGone:
		return "gone"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Notifier delivers a message to one subscription.
type Notifier interface {
	Send(ctx context.Context, sub Subscription, msg Message) (Outcome, error)
}

// Dispatcher is the post-commit notification hook.
type Dispatcher struct {
	notifier Notifier
	store    Store
	timeout  time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil notifier makes every
// notification a no-op.
func NewDispatcher(notifier Notifier, store Store, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{notifier: notifier, store: store, timeout: timeout, now: time.Now}
}

// Notify schedules delivery and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, p Principal, msg Message) {
	if d == nil || d.notifier == nil || p.PushSubscription == nil {
		recordNotification(OutcomeSkipped)
		return
	}

	sub := *p.PushSubscription
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("notify: panic delivering to %s: %v", p.ID, r)
				recordNotification(OutcomeFailed)
			}
		}()
		d.deliver(ctx, p.ID, sub, msg)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, id PrincipalID, sub Subscription, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome, err := d.notifier.Send(sendCtx, sub, msg)
	recordNotification(outcome)

	switch outcome {
	case OutcomeSent, OutcomeSkipped:
	case OutcomeGone:
		cleared, err := d.store.ClearSubscription(ctx, id, sub.Endpoint, d.now().UTC())
		switch {
		case err != nil:
			log.Printf("notify: clear subscription for %s: %v", id, err)
		case cleared:
			log.Printf("notify: subscription for %s expired, cleared", id)
		default:
			log.Printf("notify: expired subscription for %s was already replaced", id)
		}
	default:
		log.Printf("notify: delivery to %s failed: %v", id, err)
	}
}

// Wait blocks until every scheduled notification has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
