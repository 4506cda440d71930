// Package llm talks to an OpenAI-compatible chat and transcription API.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/telemetry"
)

// api is the subset of the go-openai client used here.
type api interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Client wraps the API with retries and tracing.
type Client struct {
	api    api
	config Config
}

// NewClient creates a Client for cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(clientConfig), config: cfg}, nil
}

// Model returns the chat model name.
func (c *Client) Model() string {
	return c.config.Model
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	return false
}

func (c *Client) withRetry(ctx context.Context, op string, f func() error) error {
	cfg := c.config.Retry
	if cfg.Attempts == 0 {
		cfg = DefaultRetryConfig
	}

	var delayType retry.DelayTypeFunc
	switch cfg.BackoffType {
	case "fixed":
		delayType = retry.FixedDelay
	default:
		delayType = retry.BackOffDelay
	}

	var originalErrors []error
	err := retry.Do(
		func() error {
			err := f()
			if err != nil {
				originalErrors = append(originalErrors, err)
			}
			return err
		},
		retry.RetryIf(isRetryableError),
		retry.Attempts(uint(cfg.Attempts)),
		retry.Delay(time.Duration(cfg.InitialDelay)*time.Millisecond),
		retry.DelayType(delayType),
		retry.MaxDelay(time.Duration(cfg.MaxDelay)*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("operation", op).
				WithField("attempt", n+1).
				WithField("max_attempts", cfg.Attempts).
				Warn("retrying llm api call")
		}),
	)
	if err != nil && len(originalErrors) > 1 {
		return errors.Wrapf(err, "%s failed after %d attempts", op, len(originalErrors))
	}
	return err
}

// Chat sends one chat completion request and returns the first choice's
// message. Tools may be nil.
func (c *Client) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.chat",
		attribute.String("llm.model", c.config.Model),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.tools", len(tools)),
	)
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
	}
	if len(tools) > 0 {
		req.Tools = tools
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, "chat completion", func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return openai.ChatCompletionMessage{}, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("chat completion returned no choices")
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message, nil
}

// Complete runs a single system + user exchange and returns the trimmed
// assistant text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := c.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}
