// Package anthropic reaches the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Client sends single-turn message requests.
type Client struct {
	client sdk.Client
	model  string
	hasKey bool
}

var _ domain.Completer = (*Client)(nil)

// NewClient creates a Client. An empty apiKey is accepted; calls then fail
// with domain.ErrMissingCredentials.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: sdk.NewClient(opts...),
		model:  model,
		hasKey: apiKey != "",
	}
}

// Complete returns the first text block of the reply.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("anthropic: %w: ANTHROPIC_API_KEY is not configured", domain.ErrMissingCredentials)
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: sdk.Float(req.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: %w", domain.ErrEmptyCompletion)
}
