package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/coordinator"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/pkg/cerr"
)

// taskRequest is the body of an execute call. Model and temperature are
// optional and fall back to the coordinator's defaults.
type taskRequest struct {
	Task        string  `json:"task"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// agentStatus reports the gate. CurrentTask is null while idle.
type agentStatus struct {
	Status      string  `json:"status"`
	CurrentTask *string `json:"current_task"`
	Uptime      string  `json:"uptime"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"message":   "🌐 AgentDeck API",
		"version":   Version,
		"status":    "active",
		"websocket": fmt.Sprintf("ws://%s/ws/chat", r.Host),
	})
}

func (s *Server) handleStatus(_ http.ResponseWriter, r *http.Request) {
	busy, task := s.gate.Status()
	st := agentStatus{
		Status: "idle",
		Uptime: formatUptime(time.Since(s.startedAt)),
	}
	if busy {
		st.Status = "busy"
		st.CurrentTask = &task
	}
	cerr.SetJSONResponse(r.Context(), st)
}

// handleExecute runs a task submitted over REST instead of the socket. The
// call is synchronous: the response reports the task's outcome. Observers
// follow along on the transcript, opened by a banner naming the task since
// there is no user echo on this path.
func (s *Server) handleExecute(runCtx context.Context) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req taskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
			return
		}
		text := strings.TrimSpace(req.Task)
		if text == "" {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "task is required", nil)
			return
		}

		if busy, _ := s.gate.Status(); busy {
			cerr.SetNewJSONError(ctx, cerr.Aborted, "Agent occupé", nil)
			return
		}

		banner := fmt.Sprintf("🎯 Démarrage de la tâche: %s", text)
		s.hub.Broadcast(hub.NewEvent(hub.KindSystem, banner, s.env.AgentEnv.Sender))

		outcome := s.coord.Submit(runCtx, "", agent.Task{
			Text:        text,
			Model:       req.Model,
			Temperature: req.Temperature,
		})
		switch outcome {
		case coordinator.OutcomeCompleted:
			cerr.SetJSONResponse(ctx, map[string]string{
				"status":  "success",
				"message": "Tâche exécutée",
			})
		case coordinator.OutcomeRejected:
			cerr.SetNewJSONError(ctx, cerr.Aborted, "Agent occupé", nil)
		case coordinator.OutcomePartialFailure:
			cerr.SetNewJSONError(ctx, cerr.Internal, "task completed with step errors", nil)
		default:
			cerr.SetNewJSONError(ctx, cerr.Internal, "task execution failed", nil)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	busy, _ := s.gate.Status()
	writeJSON(w, map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().Format(time.RFC3339),
		"connections": s.hub.Len(),
		"agent_busy":  busy,
		"engine":      s.engine,
	})
}

// formatUptime renders a duration as HH:MM:SS.
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
