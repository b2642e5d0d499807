package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/viraatdas/wagerpals/internal/metrics"
	"github.com/viraatdas/wagerpals/internal/model"
)

// SubscriptionStore is the slice of the persistence layer the dispatcher
// needs: stored Web Push subscriptions.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Dispatcher fans a Message out to the WebSocket hub and, when VAPID keys
// are configured, to every stored Web Push subscription. Delivery is
// best-effort: failures are logged, never surfaced to the request that
// triggered them.
type Dispatcher struct {
	hub   *Hub
	store SubscriptionStore

	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string // mailto: contact for the push service
}

// NewDispatcher creates a dispatcher. Empty VAPID keys disable Web Push;
// the hub broadcast still runs.
func NewDispatcher(hub *Hub, store SubscriptionStore, vapidPublicKey, vapidPrivateKey, subscriber string) *Dispatcher {
	return &Dispatcher{
		hub:             hub,
		store:           store,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
	}
}

// Notify broadcasts msg to WebSocket clients and pushes it to stored
// subscriptions in the background. Safe to call on a nil dispatcher.
func (d *Dispatcher) Notify(msg Message) {
	if d == nil {
		return
	}
	if d.hub != nil {
		d.hub.Broadcast(msg)
	}
	if d.vapidPublicKey == "" || d.vapidPrivateKey == "" || d.store == nil {
		return
	}
	// Push delivery happens off the request path.
	go d.pushAll(context.Background(), msg)
}

func (d *Dispatcher) pushAll(ctx context.Context, msg Message) {
	subs, err := d.store.ListPushSubscriptions(ctx)
	if err != nil {
		slog.Warn("push: listing subscriptions failed", "err", err)
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for _, sub := range subs {
		if err := d.send(payload, sub); err != nil {
			metrics.PushDeliveries.WithLabelValues("error").Inc()
			slog.Warn("push delivery failed", "endpoint", sub.Endpoint, "err", err)
			continue
		}
		metrics.PushDeliveries.WithLabelValues("ok").Inc()
	}
}

func (d *Dispatcher) send(payload []byte, sub model.PushSubscription) error {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	resp, err := webpush.SendNotification(payload, target, &webpush.Options{
		Subscriber:      d.subscriber,
		VAPIDPublicKey:  d.vapidPublicKey,
		VAPIDPrivateKey: d.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The push service reports dead subscriptions with 404/410; drop them
	// so we stop retrying forever.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := d.store.DeletePushSubscription(context.Background(), sub.Endpoint); err == nil {
			slog.Info("push: pruned expired subscription", "endpoint", sub.Endpoint)
		}
	}
	return nil
}
