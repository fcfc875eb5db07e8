package pushnotification

import (
	"context"
	"log/slog"

	"github.com/agentdeck/agentdeck/internal/hub"
)

const notificationBodyLimit = 120

// Dispatcher taps the hub and turns terminal task events into web-push
// notifications, so a closed tab still learns how its task ended.
type Dispatcher struct {
	hub    *hub.Hub
	sender *Sender
}

func NewDispatcher(h *hub.Hub, sender *Sender) *Dispatcher {
	return &Dispatcher{
		hub:    h,
		sender: sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.hub.Subscribe(256)
	defer d.hub.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if payload := notificationFor(event); payload != nil {
				d.sender.SendToAll(ctx, payload)
			}
		}
	}
}

// notificationFor maps an event to a push payload. Only terminal task
// events (agent success, error) notify; echoes and progress chatter do not.
func notificationFor(ev *hub.Event) *NotificationPayload {
	var title string
	switch ev.Type {
	case hub.KindAgent:
		title = "Tâche terminée"
	case hub.KindError:
		title = "Tâche échouée"
	default:
		return nil
	}
	return &NotificationPayload{
		Title: title,
		Body:  clip(ev.Content, notificationBodyLimit),
	}
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
