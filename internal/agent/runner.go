package agent

import (
	"context"
	"fmt"
)

const (
	EngineSimulated  = "simulated"
	EngineOpenAI     = "openai"
	EngineClaudeCode = "claudecode"
)

// Runner executes tasks. Run returns an error only when execution itself
// broke down; an unsatisfying outcome is reported through Result steps.
type Runner interface {
	Run(ctx context.Context, task Task) (*Result, error)
	Name() string
}

type Config struct {
	Engine        string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	WorkDir       string
}

// New creates the runner for the configured engine.
func New(cfg Config) (Runner, error) {
	switch cfg.Engine {
	case EngineSimulated:
		return NewSimulatedRunner(), nil
	case EngineOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai engine requires an API key")
		}
		return NewOpenAIRunner(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case EngineClaudeCode:
		return NewClaudeCodeRunner(cfg.WorkDir), nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
	}
}
