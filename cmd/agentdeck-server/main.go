package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	server "github.com/agentdeck/agentdeck/internal"
	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/coordinator"
	"github.com/agentdeck/agentdeck/internal/gate"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/pushnotification"
	"github.com/agentdeck/agentdeck/internal/pushsubscription/repositoryimpl"
	"github.com/agentdeck/agentdeck/internal/router"
	"github.com/agentdeck/agentdeck/pkg/clog"
	"github.com/agentdeck/agentdeck/pkg/panicerr"
	"github.com/agentdeck/agentdeck/pkg/storage"
)

var (
	app = kingpin.New("agentdeck-server", "Real-time agent task backend")

	logLevel = app.Flag("log-level", "Log level, overriding AGENTDECK_LOG_LEVEL").String()

	runCmd    = app.Command("run", "Run the server").Default()
	runHost   = runCmd.Flag("host", "Bind address, overriding AGENTDECK_HTTP_HOST").String()
	runPort   = runCmd.Flag("port", "Bind port, overriding AGENTDECK_HTTP_PORT").String()
	runEngine = runCmd.Flag("engine", "Agent engine, overriding AGENTDECK_AGENT_ENGINE").String()

	sentinelCmd = app.Command("sentinel", "Supervise the server, restarting it on crash or binary update")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Flags win over environment values.
	if *logLevel != "" {
		env.LogLevel = *logLevel
	}
	if *runHost != "" {
		env.HTTPHost = *runHost
	}
	if *runPort != "" {
		env.HTTPPort = *runPort
	}
	if *runEngine != "" {
		env.Engine = *runEngine
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	switch command {
	case sentinelCmd.FullCommand():
		if err := runSentinel(); err != nil {
			slog.Error("sentinel error", "error", err)
			os.Exit(1)
		}
	case runCmd.FullCommand():
		if err := run(env); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func run(env *config.Env) error {
	// Setup storage
	var store storage.Storage
	var err error
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			return fmt.Errorf("create S3 storage: %w", err)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			return fmt.Errorf("create local storage: %w", err)
		}
	}

	runner := newRunner(config.AgentEnvFromEnv(env))

	// Setup chat hub and task pipeline
	h := hub.New(hub.Options{
		Welcome: func() *hub.Event {
			return hub.NewEvent(hub.KindSystem, hub.WelcomeMessage, hub.SenderSystem)
		},
	})
	g := gate.New()
	coord := coordinator.New(h, g, runner, coordinator.Options{
		Model:         env.AgentEnv.Model,
		Temperature:   env.AgentEnv.Temperature,
		ProgressDelay: env.AgentEnv.ProgressDelay,
		Timeout:       env.AgentEnv.Timeout,
		AgentSender:   env.AgentEnv.Sender,
	})
	msgRouter := router.New(h, coord)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSubRepo := repositoryimpl.NewYAMLRepository(store)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushServer := pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(h, pushSender)

	srv := server.NewServer(env, h, g, msgRouter, coord, pushServer, runner.Name())

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	panicerr.Go(func() {
		pushDispatcher.Start(ctx)
	})

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give in-flight requests time to finish after task contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// newRunner builds the configured engine, falling back to the simulated one
// when the engine's requirements are not met.
func newRunner(agentEnv *config.AgentEnv) agent.Runner {
	runner, err := agent.New(agent.Config{
		Engine:        agentEnv.Engine,
		OpenAIAPIKey:  agentEnv.OpenAIAPIKey,
		OpenAIBaseURL: agentEnv.OpenAIBaseURL,
		WorkDir:       agentEnv.WorkDir,
	})
	if err != nil {
		slog.Warn("falling back to simulated engine", "engine", agentEnv.Engine, "error", err)
		return agent.NewSimulatedRunner()
	}
	return runner
}
