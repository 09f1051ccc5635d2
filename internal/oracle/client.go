// Package oracle wraps the multimodal extraction service behind the
// domain.Oracle interface. The client speaks the OpenAI-compatible chat
// completion protocol, so any OpenRouter-style endpoint works.
package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

const defaultMaxTokens = 4096

// Client handles communication with the extraction oracle.
type Client struct {
	cli     *openai.Client
	model   string
	timeout time.Duration
	retry   RetryConfig
	logger  *observability.Logger
}

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewClient creates a new oracle client. A missing API key is a fatal
// configuration state: no partial result is possible without the oracle.
func NewClient(cfg config.OracleConfig, logger *observability.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.ErrNoCredential
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	retry := RetryConfig{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialBackoff == 0 {
		retry.InitialBackoff = time.Second
	}
	if retry.MaxBackoff == 0 {
		retry.MaxBackoff = 30 * time.Second
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		cli:     openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		retry:   retry,
		logger:  logger.WithComponent("oracle"),
	}, nil
}

// Complete sends one multimodal request and returns the raw response text.
func (c *Client) Complete(ctx context.Context, req domain.OracleRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: buildParts(req),
			},
		},
		MaxTokens: maxTokens,
	}

	resp, err := c.completeWithBackoff(ctx, chatReq)
	if err != nil {
		return "", domain.OracleError("chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.OracleError("no choices in oracle response", nil)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildParts assembles the ordered text/image content blocks.
func buildParts(req domain.OracleRequest) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, 1+2*len(req.Images))
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	})

	for i, img := range req.Images {
		if i < len(req.Labels) && req.Labels[i] != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Labels[i],
			})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	return parts
}

// completeWithBackoff wraps the oracle call with bounded exponential backoff.
// Each attempt carries its own deadline so one hung request cannot stall a
// pipeline run. Rate limits, server-side failures and per-attempt timeouts
// retry; everything else fails fast.
func (c *Client) completeWithBackoff(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		default:
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.cli.CreateChatCompletion(attemptCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return openai.ChatCompletionResponse{}, err
		}

		if attempt == c.retry.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, c.retry)
		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", c.retry.MaxRetries).
			Dur("backoff", backoff).
			Err(err).
			Msg("Oracle request failed, retrying")

		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return openai.ChatCompletionResponse{}, fmt.Errorf("request failed after %d retries: %w", c.retry.MaxRetries, lastErr)
}
