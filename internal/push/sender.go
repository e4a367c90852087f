package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
)

// Sender fans a notification out to every subscription of a user. With nil
// VAPID options (keys not configured) sending is a no-op while
// subscriptions keep being collected.
type Sender struct {
	store *Store
	vapid *webpush.Options
}

// NewSender builds a sender. Empty keys disable delivery.
func NewSender(store *Store, subscriber, publicKey, privateKey string) *Sender {
	s := &Sender{store: store}
	if publicKey != "" && privateKey != "" {
		s.vapid = &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		}
	}
	return s
}

// Enabled reports whether VAPID keys are configured.
func (s *Sender) Enabled() bool { return s.vapid != nil }

// Notify delivers to all of the user's subscriptions. Errors are logged and
// swallowed; endpoints reported gone (404/410) are pruned from the store.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if s.vapid == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	subs, err := s.store.List(ctx, userID)
	if err != nil {
		logger.Errorf("push: list subscriptions user=%s: %v", userID, err)
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("push: send %s: %v", truncate(sub.Endpoint, 50), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := s.store.Remove(ctx, userID, sub.Endpoint); err != nil {
				logger.Errorf("push: prune %s: %v", truncate(sub.Endpoint, 50), err)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
