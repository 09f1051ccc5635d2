package oracle

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

func apiError(status int) error {
	return &openai.APIError{HTTPStatusCode: status, Message: "oops"}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", apiError(429), true},
		{"internal server error", apiError(500), true},
		{"bad gateway", apiError(502), true},
		{"service unavailable", apiError(503), true},
		{"gateway timeout", apiError(504), true},
		{"unauthorized", apiError(401), false},
		{"bad request", apiError(400), false},
		{"not found", apiError(404), false},
		{"connection error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"attempt deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetry(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}

	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	// Capped at the configured maximum.
	assert.Equal(t, 10*time.Second, calculateBackoff(5, cfg))
}

func TestNewClientRequiresCredential(t *testing.T) {
	_, err := NewClient(config.OracleConfig{}, observability.Nop())
	require.ErrorIs(t, err, domain.ErrNoCredential)

	c, err := NewClient(config.OracleConfig{APIKey: "sk-or-test", Model: "anthropic/claude-3.5-sonnet"}, observability.Nop())
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", c.model)
	assert.Equal(t, 3, c.retry.MaxRetries)
	assert.Equal(t, 120*time.Second, c.timeout)

	c, err = NewClient(config.OracleConfig{APIKey: "sk-or-test", RequestTimeout: 5 * time.Second}, observability.Nop())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.timeout)
}

func TestCompleteAppliesAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(config.OracleConfig{
		APIKey:         "sk-or-test",
		BaseURL:        srv.URL,
		RequestTimeout: 50 * time.Millisecond,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, observability.Nop())
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Complete(context.Background(), domain.OracleRequest{Prompt: "hello"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second, "per-attempt deadline cuts the call short")
}

func TestBuildParts(t *testing.T) {
	req := domain.OracleRequest{
		Prompt: "extract the storyboard",
		Images: [][]byte{[]byte("img-a"), []byte("img-b")},
		Labels: []string{"Page 1:", "Page 2:"},
	}

	parts := buildParts(req)

	// Prompt, then label/image pairs in order.
	require.Len(t, parts, 5)
	assert.Equal(t, openai.ChatMessagePartTypeText, parts[0].Type)
	assert.Equal(t, "extract the storyboard", parts[0].Text)
	assert.Equal(t, "Page 1:", parts[1].Text)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, parts[2].Type)
	assert.Contains(t, parts[2].ImageURL.URL, "data:image/jpeg;base64,")
	assert.Equal(t, "Page 2:", parts[3].Text)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, parts[4].Type)
}

func TestBuildPartsWithoutLabels(t *testing.T) {
	parts := buildParts(domain.OracleRequest{
		Prompt: "group these frames",
		Images: [][]byte{[]byte("a"), []byte("b"), []byte("c")},
	})

	require.Len(t, parts, 4)
	for _, p := range parts[1:] {
		assert.Equal(t, openai.ChatMessagePartTypeImageURL, p.Type)
	}
}
