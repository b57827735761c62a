// Package ai wraps the hosted text-generation collaborators used to draft
// nudge copy: an OpenAI-compatible gateway and AWS Bedrock.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited means the provider asked us to slow down.
	ErrRateLimited = errors.New("ai provider rate limited")
	// ErrQuotaExceeded means the paid quota or credit balance is exhausted.
	ErrQuotaExceeded = errors.New("ai provider quota exceeded")
	// ErrEmptyResponse means the provider answered without any text.
	ErrEmptyResponse = errors.New("ai provider returned no text")
)

// Prompt is a single-turn generation request.
type Prompt struct {
	System string
	User   string
}

// Generator turns a prompt into text. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Options shared by the generator implementations.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
}
