package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// GatewayGenerator calls an OpenAI-compatible chat completions endpoint.
type GatewayGenerator struct {
	client *openai.Client
	opts   Options
}

// NewGatewayGenerator creates a generator against baseURL (for example
// "https://gateway.example.com/v1").
func NewGatewayGenerator(baseURL, apiKey string, timeout time.Duration, opts Options) *GatewayGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &GatewayGenerator{client: openai.NewClientWithConfig(cfg), opts: opts}
}

func (g *GatewayGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.opts.Model,
		Messages:    msgs,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return "", classifyGatewayError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyGatewayError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		// Exhausted paid quota arrives as a 429 with this code.
		if fmt.Sprint(apiErr.Code) == "insufficient_quota" || apiErr.Type == "insufficient_quota" {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("ai gateway: %w", err)
}
