// Package internal wires the chat hub, the task coordinator and the push
// notification endpoints into one HTTP server.
package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/coordinator"
	"github.com/agentdeck/agentdeck/internal/gate"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/pushnotification"
	"github.com/agentdeck/agentdeck/internal/router"
	"github.com/agentdeck/agentdeck/pkg/cerr"
	"github.com/agentdeck/agentdeck/pkg/clog"
)

// Version is reported by the index endpoint.
const Version = "2.0.0"

type Server struct {
	mu        sync.Mutex
	server    *http.Server
	env       *config.Env
	hub       *hub.Hub
	gate      *gate.Gate
	router    *router.Router
	coord     *coordinator.Coordinator
	push      *pushnotification.Server
	engine    string
	startedAt time.Time

	// Websocket keepalive timing, constant in production.
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewServer(
	env *config.Env,
	h *hub.Hub,
	g *gate.Gate,
	msgRouter *router.Router,
	coord *coordinator.Coordinator,
	push *pushnotification.Server,
	engine string,
) *Server {
	return &Server{
		env:        env,
		hub:        h,
		gate:       g,
		router:     msgRouter,
		coord:      coord,
		push:       push,
		engine:     engine,
		startedAt:  time.Now(),
		writeWait:  wsWriteWait,
		pongWait:   wsPongWait,
		pingPeriod: wsPingPeriod,
	}
}

// ListenAndServe starts the HTTP server. The provided context is used as the
// base context for all incoming requests via http.Server.BaseContext, and it
// also carries task execution: cancelling it aborts in-flight agent runs so
// the server can shut down without waiting for them.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr, "engine", s.engine)

	srv := &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   s.env.CORSOriginList(),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.handler(ctx)), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	return srv.ListenAndServe()
}

// Shutdown stops the HTTP server. Before ListenAndServe has run there is
// nothing to stop and the call is a no-op, so a signal racing startup
// does not crash the process.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handler assembles the route tree. runCtx outlives any single connection:
// tasks submitted over a socket keep running when their submitter drops.
func (s *Server) handler(runCtx context.Context) http.Handler {
	api := chi.NewRouter()
	api.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.RequestID,
			clog.RequestLogger(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Get("/status", s.handleStatus)
		r.Post("/execute", s.handleExecute(runCtx))
		r.Route("/push", func(r chi.Router) {
			s.push.RegisterRoutes(r)
		})
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/api/", api)
	mux.HandleFunc("/ws/chat", s.handleChatSocket(runCtx))
	mux.HandleFunc("/", s.handleIndex)
	return mux
}
