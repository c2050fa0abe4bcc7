package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/2kPi/OpenFamily/internal/domain"
)

// SubscriptionStore is the slice of storage the push channel needs.
type SubscriptionStore interface {
	ListPushSubscriptionsByFamily(familyID string) ([]*domain.PushSubscription, error)
	DeletePushSubscriptionByEndpoint(endpoint string) error
}

// WebPush delivers notifications to every push endpoint registered by a
// family, using VAPID-authenticated Web Push.
type WebPush struct {
	store      SubscriptionStore
	publicKey  string
	privateKey string
	subject    string
}

func NewWebPush(store SubscriptionStore, publicKey, privateKey, subject string) *WebPush {
	return &WebPush{
		store:      store,
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
	}
}

type pushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon"`
	Badge string            `json:"badge"`
	Data  map[string]string `json:"data"`
}

func (w *WebPush) Send(familyID, title, body string, data map[string]string) error {
	subs, err := w.store.ListPushSubscriptionsByFamily(familyID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	if data == nil {
		data = map[string]string{}
	}
	payload, err := json.Marshal(pushPayload{
		Title: title,
		Body:  body,
		Icon:  "/icon-192.png",
		Badge: "/icon-192.png",
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	var lastErr error
	for _, sub := range subs {
		if err := w.sendOne(sub, payload); err != nil {
			log.Printf("Error sending push to %s: %v", sub.Endpoint, err)
			lastErr = err
		}
	}
	return lastErr
}

func (w *WebPush) sendOne(sub *domain.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      w.subject,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The push service tells us the subscription no longer exists; drop it so
	// we stop retrying a dead endpoint.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		if err := w.store.DeletePushSubscriptionByEndpoint(sub.Endpoint); err != nil {
			log.Printf("Error removing stale subscription %s: %v", sub.Endpoint, err)
		}
		return fmt.Errorf("subscription gone (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
