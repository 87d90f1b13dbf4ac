// Package openai reaches OpenAI chat completions through go-openai.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Client sends single-turn chat completions.
type Client struct {
	client *goopenai.Client
	model  string
	hasKey bool
}

var _ domain.Completer = (*Client)(nil)

// NewClient creates a Client. An empty apiKey is accepted; calls then fail
// with domain.ErrMissingCredentials. baseURL overrides the API root.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
		hasKey: apiKey != "",
	}
}

// Complete returns the first choice's message content.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("openai: %w: OPENAI_API_KEY is not configured", domain.ErrMissingCredentials)
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", domain.ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}
