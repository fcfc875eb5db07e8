package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"

	"github.com/agentdeck/agentdeck/pkg/shellformat"
)

const claudeSystemPrompt = "You are a task execution assistant. " +
	"Complete the user's task using the tools available to you, then reply " +
	"with a concise summary of the outcome."

// stepSummaryMax bounds one recorded tool invocation in the step log.
const stepSummaryMax = 200

// ClaudeCodeRunner executes tasks through the local claude CLI. Model
// selection follows the CLI configuration rather than the task parameters.
type ClaudeCodeRunner struct {
	workDir string
}

func NewClaudeCodeRunner(workDir string) *ClaudeCodeRunner {
	return &ClaudeCodeRunner{workDir: workDir}
}

func (r *ClaudeCodeRunner) Name() string {
	return EngineClaudeCode
}

func (r *ClaudeCodeRunner) Run(ctx context.Context, task Task) (*Result, error) {
	var (
		mu    sync.Mutex
		steps []StepOutcome
	)

	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt:   claudeSystemPrompt,
		Cwd:            r.workDir,
		PermissionMode: claudeagent.PermissionModeDefault,
		// Every tool is allowed; the callback records what the agent ran.
		CanUseTool: func(toolName string, input map[string]any, _ claudeagent.ToolPermissionContext) (claudeagent.PermissionResult, error) {
			mu.Lock()
			steps = append(steps, StepOutcome{Content: describeToolUse(toolName, input)})
			mu.Unlock()
			return claudeagent.PermissionResultAllow{}, nil
		},
		StderrCallback: func(line string) {
			slog.Debug("claude stderr", "line", line)
		},
	}

	result, err := claudeagent.RunQuerySync(ctx, task.Text, opts)
	if err != nil {
		return nil, fmt.Errorf("claude query: %w", err)
	}
	if result.Result == nil {
		return nil, errors.New("claude returned no result message")
	}
	if result.Result.IsError {
		msg := result.Result.Result
		if msg == "" {
			msg = "agent returned an error"
		}
		return &Result{Steps: append(steps, StepOutcome{Err: msg})}, nil
	}
	return &Result{Final: result.Result.Result, Steps: steps}, nil
}

// describeToolUse renders one tool invocation for the step log. Shell
// commands fold to a single line so the log stays scannable.
func describeToolUse(toolName string, input map[string]any) string {
	switch toolName {
	case "Bash":
		if cmd, ok := input["command"].(string); ok && cmd != "" {
			return "Bash: " + shellformat.Summarize(cmd, stepSummaryMax)
		}
	case "Read", "Write", "Edit":
		if path, ok := input["file_path"].(string); ok && path != "" {
			return toolName + ": " + path
		}
	}
	return toolName
}
