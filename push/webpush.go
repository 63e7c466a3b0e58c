// Package push delivers chores notifications over Web Push.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/warp/chore-engine/chores"
)

// VAPID identifies this server to push services.
type VAPID struct {
	Subject    string // mailto: or https: contact
	PublicKey  string
	PrivateKey string
}

// Configured reports whether both keys are present.
func (v VAPID) Configured() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// WebPush sends VAPID-signed, encrypted Web Push messages.
type WebPush struct {
	vapid  VAPID
	ttl    int
	client *http.Client
}

var _ chores.Notifier = (*WebPush)(nil)

func NewWebPush(vapid VAPID, client *http.Client) *WebPush {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPush{vapid: vapid, ttl: 3600, client: client}
}

// Send encrypts msg for sub and posts it to the subscription endpoint.
// 404 and 410 mean the browser dropped the subscription.
func (w *WebPush) Send(ctx context.Context, sub chores.Subscription, msg chores.Message) (chores.Outcome, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return chores.OutcomeFailed, fmt.Errorf("encode message: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.vapid.Subject,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             w.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return chores.OutcomeFailed, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return chores.OutcomeSent, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return chores.OutcomeGone, nil
	default:
		return chores.OutcomeFailed, fmt.Errorf("push service returned %s", resp.Status)
	}
}

// LogNotifier stands in when no VAPID keys are configured.
type LogNotifier struct{}

var _ chores.Notifier = LogNotifier{}

func (LogNotifier) Send(_ context.Context, sub chores.Subscription, msg chores.Message) (chores.Outcome, error) {
	log.Printf("push: (not configured) %q to %s", msg.Title, sub.Endpoint)
	return chores.OutcomeSkipped, nil
}

// GenerateVAPIDKeys returns a fresh (public, private) key pair.
func GenerateVAPIDKeys() (public, private string, err error) {
	private, public, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return public, private, nil
}
