package pushsubscription

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Subscription is one browser's web-push registration, kept so task
// completion can be announced after the tab is gone.
type Subscription struct {
	ID        string    `yaml:"id"`
	Endpoint  string    `yaml:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key"`
	CreatedAt time.Time `yaml:"created_at"`
}

// New mints a Subscription with a fresh ID.
func New(endpoint, p256dhKey, authKey string) *Subscription {
	return &Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  endpoint,
		P256dhKey: p256dhKey,
		AuthKey:   authKey,
		CreatedAt: time.Now().UTC(),
	}
}
