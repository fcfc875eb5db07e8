package hub

import "time"

type Kind string

const (
	KindUser   Kind = "user"
	KindAgent  Kind = "agent"
	KindSystem Kind = "system"
	KindError  Kind = "error"
)

// Well-known sender labels shown in the chat transcript.
const (
	SenderSystem = "Système"
	SenderUser   = "Vous"
	SenderVoice  = "Vocal"
)

// WelcomeMessage greets every client when its connection is registered.
const WelcomeMessage = "🚀 Agent connecté ! Prêt à exécuter vos tâches."

const timeFormat = "15:04:05"

// Event is a single chat transcript entry, serialized as-is onto the wire.
type Event struct {
	Type      Kind   `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
}

func NewEvent(kind Kind, content, sender string) *Event {
	return &Event{
		Type:      kind,
		Content:   content,
		Timestamp: time.Now().Format(timeFormat),
		Sender:    sender,
	}
}
