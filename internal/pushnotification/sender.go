package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sourcegraph/conc"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/pushsubscription"
)

// notificationTTL bounds how long a push service holds an undelivered
// notification, in seconds.
const notificationTTL = 86400

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Sender fans a payload out to every stored subscription. Delivery is
// best-effort: failures are logged, and endpoints the push service
// reports as gone are dropped from the repository.
type Sender struct {
	vapid *config.VAPIDEnv
	repo  pushsubscription.Repository
}

func NewSender(vapid *config.VAPIDEnv, repo pushsubscription.Repository) *Sender {
	return &Sender{vapid: vapid, repo: repo}
}

func (s *Sender) SendToAll(ctx context.Context, payload *NotificationPayload) {
	if s.vapid.PublicKey == "" || s.vapid.PrivateKey == "" {
		slog.Warn("web push disabled, VAPID keys not configured")
		return
	}
	subs, err := s.repo.List(ctx)
	if err != nil {
		slog.Error("web push: failed to list subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("web push: failed to marshal payload", "error", err)
		return
	}

	var wg conc.WaitGroup
	for _, sub := range subs {
		wg.Go(func() { s.send(ctx, sub, body) })
	}
	wg.Wait()
	slog.Debug("web push fan-out finished", "subscriptions", len(subs), "title", payload.Title)
}

func (s *Sender) send(ctx context.Context, sub *pushsubscription.Subscription, body []byte) {
	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		Subscriber:      s.vapid.Subscriber,
		TTL:             notificationTTL,
	})
	if err != nil {
		slog.Error("web push: send failed", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The push service says this browser is gone for good.
		slog.Info("web push: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.Error("web push: failed to remove expired subscription", "id", sub.ID, "error", err)
		}
	case resp.StatusCode >= 400:
		slog.Warn("web push: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
