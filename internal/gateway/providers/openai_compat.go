package providers

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatTransport speaks the OpenAI chat-completions dialect, which
// covers OpenAI itself plus local vllm/ollama-style servers exposing a
// compatible endpoint. It is the gateway's single concrete transport;
// other vendor integrations implement the Transport interface outside this
// package.
type OpenAICompatTransport struct {
	client *openai.Client
}

// NewOpenAICompatTransport creates a transport against an
// OpenAI-compatible endpoint. apiKey may be empty for local servers.
func NewOpenAICompatTransport(endpoint, apiKey string) *OpenAICompatTransport {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &OpenAICompatTransport{client: openai.NewClientWithConfig(cfg)}
}

// Execute issues one chat completion. Request context, when present, is
// passed as a system message ahead of the prompt.
func (t *OpenAICompatTransport) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.Context != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Context,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	return &ExecuteResult{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: int64(resp.Usage.TotalTokens),
	}, nil
}

// HealthCheck lists models as a cheap reachability probe.
func (t *OpenAICompatTransport) HealthCheck(ctx context.Context) bool {
	_, err := t.client.ListModels(ctx)
	return err == nil
}
