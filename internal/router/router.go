// Package router dispatches inbound client messages to the hub and the
// coordinator.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/coordinator"
	"github.com/agentdeck/agentdeck/internal/hub"
)

const (
	TypeUserMessage = "user_message"
	TypeVoiceInput  = "voice_input"
	TypePing        = "ping"
)

// Message is the envelope clients send over the socket.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Pong answers a ping. It goes only to the sender and bypasses the
// transcript entirely.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type Router struct {
	hub   *hub.Hub
	coord *coordinator.Coordinator
}

func New(h *hub.Hub, coord *coordinator.Coordinator) *Router {
	return &Router{
		hub:   h,
		coord: coord,
	}
}

// Handle processes one raw frame from obs. A frame that does not decode
// returns an error and the caller is expected to drop the connection;
// unknown message types are ignored.
func (r *Router) Handle(ctx context.Context, obs *hub.Observer, raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	switch msg.Type {
	case TypeUserMessage:
		r.handleUserMessage(ctx, obs, msg.Content)
	case TypeVoiceInput:
		r.handleVoiceInput(ctx, obs, msg.Content)
	case TypePing:
		r.hub.SendTo(obs.ID(), Pong{
			Type:      "pong",
			Timestamp: time.Now().Format(time.RFC3339),
		})
	default:
		slog.Debug("ignoring unknown message type", "type", msg.Type)
	}
	return nil
}

func (r *Router) handleUserMessage(ctx context.Context, obs *hub.Observer, content string) {
	text := strings.TrimSpace(content)
	if text == "" {
		return
	}
	r.hub.Broadcast(hub.NewEvent(hub.KindUser, text, hub.SenderUser))
	r.coord.Submit(ctx, obs.ID(), agent.Task{Text: text})
}

// handleVoiceInput always echoes the transcription, even an empty one, so
// every observer sees what was heard. Only non-blank input becomes a task.
func (r *Router) handleVoiceInput(ctx context.Context, obs *hub.Observer, content string) {
	r.hub.Broadcast(hub.NewEvent(hub.KindUser, fmt.Sprintf("🎤 Vocal: « %s »", content), hub.SenderVoice))
	text := strings.TrimSpace(content)
	if text == "" {
		return
	}
	r.coord.Submit(ctx, obs.ID(), agent.Task{Text: text})
}
