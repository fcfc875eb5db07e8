// Package coordinator drives a task from admission to its terminal
// transcript event, holding the execution gate for the duration.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/gate"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/pkg/panicerr"
)

type Outcome string

const (
	OutcomeRejected       Outcome = "rejected"
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomePartialFailure Outcome = "partial_failure"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

type Options struct {
	// Model and Temperature apply to tasks that do not carry their own.
	Model       string
	Temperature float64
	// ProgressDelay paces the advisory progress events. Zero emits them
	// without pacing.
	ProgressDelay time.Duration
	// Timeout bounds a single task run. Zero means the task may hold the
	// gate indefinitely.
	Timeout time.Duration
	// AgentSender is the sender label on events attributed to the agent.
	AgentSender string
}

type Coordinator struct {
	hub    *hub.Hub
	gate   *gate.Gate
	runner agent.Runner
	opts   Options
}

func New(h *hub.Hub, g *gate.Gate, runner agent.Runner, opts Options) *Coordinator {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.AgentSender == "" {
		opts.AgentSender = "Agent"
	}
	return &Coordinator{
		hub:    h,
		gate:   g,
		runner: runner,
		opts:   opts,
	}
}

// Submit runs the task if the agent is free, reporting progress and the
// terminal result over the hub. A busy agent rejects immediately: the
// origin observer, when known, gets a personal busy notice and nothing is
// queued. The gate is released however the run ends.
func (c *Coordinator) Submit(ctx context.Context, origin string, task agent.Task) Outcome {
	if !c.gate.TryAcquire(task.Text) {
		slog.Info("task rejected, agent busy", "task", task.Text)
		if origin != "" {
			c.hub.SendTo(origin, hub.NewEvent(hub.KindSystem, busyMessage, hub.SenderSystem))
		}
		return OutcomeRejected
	}
	defer c.gate.Release()

	if task.Model == "" {
		task.Model = c.opts.Model
	}
	if task.Temperature == 0 {
		task.Temperature = c.opts.Temperature
	}
	slog.Info("task started", "task", task.Text, "model", task.Model)

	c.hub.Broadcast(hub.NewEvent(hub.KindSystem, startMessage, c.opts.AgentSender))
	for _, msg := range progressMessages {
		c.pause(ctx)
		c.hub.Broadcast(hub.NewEvent(hub.KindSystem, msg, c.opts.AgentSender))
	}

	res, err := c.run(ctx, task)
	if err != nil {
		slog.Error("task failed", "task", task.Text, "error", err)
		content := fmt.Sprintf(hardErrorFormat, truncateRunes(err.Error(), 300))
		c.hub.Broadcast(hub.NewEvent(hub.KindError, content, hub.SenderSystem))
		return OutcomeFailed
	}

	if errs := res.StepErrors(); len(errs) > 0 {
		slog.Warn("task finished with step errors", "task", task.Text, "errors", len(errs))
		c.hub.Broadcast(c.stepFailureEvent(errs))
		return OutcomePartialFailure
	}

	slog.Info("task completed", "task", task.Text)
	content := fmt.Sprintf(successFormat, res.String(), c.opts.AgentSender)
	c.hub.Broadcast(hub.NewEvent(hub.KindAgent, content, c.opts.AgentSender))
	return OutcomeCompleted
}

func (c *Coordinator) run(ctx context.Context, task agent.Task) (*agent.Result, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	var res *agent.Result
	err := panicerr.SafeContext(func(ctx context.Context) error {
		var runErr error
		res, runErr = c.runner.Run(ctx, task)
		return runErr
	})(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("runner returned no result")
	}
	return res, nil
}

// stepFailureEvent classifies embedded step errors. An invalid OpenAI key
// gets a dedicated remediation message; everything else is summarized from
// the first three errors.
func (c *Coordinator) stepFailureEvent(errs []string) *hub.Event {
	if len(errs) > 3 {
		errs = errs[:3]
	}
	summary := strings.Join(errs, "\n")
	if strings.Contains(summary, credentialErrSubstring) {
		return hub.NewEvent(hub.KindError, credentialErrMessage, hub.SenderSystem)
	}
	content := fmt.Sprintf(stepErrorFormat, truncateRunes(summary, 500))
	return hub.NewEvent(hub.KindError, content, c.opts.AgentSender)
}

func (c *Coordinator) pause(ctx context.Context) {
	if c.opts.ProgressDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.opts.ProgressDelay):
	}
}
