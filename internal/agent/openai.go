package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAISystemPrompt = "You are a task execution assistant. " +
	"Complete the user's task and reply with a concise summary of what you did " +
	"or the information requested."

// OpenAIRunner executes tasks through the OpenAI chat completions API.
type OpenAIRunner struct {
	client openai.Client
}

func NewOpenAIRunner(apiKey, baseURL string) *OpenAIRunner {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIRunner{client: openai.NewClient(opts...)}
}

func (r *OpenAIRunner) Name() string {
	return EngineOpenAI
}

func (r *OpenAIRunner) Run(ctx context.Context, task Task) (*Result, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(task.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openAISystemPrompt),
			openai.UserMessage(task.Text),
		},
		Temperature: openai.Float(task.Temperature),
	})
	if err != nil {
		// API-level rejections (bad key, quota, unknown model) are part of
		// the outcome, not an execution breakdown.
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return &Result{Steps: []StepOutcome{{Err: apiErr.Message}}}, nil
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	return &Result{Final: resp.Choices[0].Message.Content}, nil
}
