// Package gemini reaches Gemini through the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-1.5-pro"
	// APIVersion is the Generative Language API version requested.
	APIVersion = "v1beta"
)

// Options tune transport behaviour. BaseURL overrides the SDK's endpoint
// root and is mostly useful against a local stand-in.
type Options struct {
	BaseURL        string
	Model          string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetries     uint64
	MaxElapsed     time.Duration
}

// Client calls Models.GenerateContent with rate limiting and retries.
type Client struct {
	models     *genai.Models
	model      string
	limiter    *rate.Limiter
	maxRetries uint64
	maxElapsed time.Duration
}

var _ domain.Completer = (*Client)(nil)

// NewClient creates a Client. An empty apiKey is accepted; calls then fail
// with domain.ErrMissingCredentials.
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}

	c := &Client{
		model:      opts.Model,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		maxRetries: opts.MaxRetries,
		maxElapsed: opts.MaxElapsed,
	}
	if apiKey == "" {
		return c, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    opts.BaseURL,
			APIVersion: APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.models = gc.Models
	return c, nil
}

// retryable reports whether err is worth another attempt: throttling,
// server errors and transport failures are; other API errors are not.
func retryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

// Complete returns the concatenated text parts of the first candidate.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if c.models == nil {
		return "", fmt.Errorf("gemini: %w: GOOGLE_AI_API_KEY is not configured", domain.ErrMissingCredentials)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	contents := genai.Text(req.Prompt)

	var resp *genai.GenerateContentResponse
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
		if err != nil {
			if !retryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	var policy backoff.BackOff = bo
	if c.maxRetries > 0 {
		policy = backoff.WithMaxRetries(bo, c.maxRetries)
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: %w", domain.ErrEmptyCompletion)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini: %w", domain.ErrEmptyCompletion)
	}
	return sb.String(), nil
}
