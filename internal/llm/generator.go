// Package llm wraps the text-generation providers used to write the llms.txt summary.
package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"llmstxt-crawler/internal/config"
)

var (
	// ErrNotConfigured is returned by New when no provider or key is set.
	ErrNotConfigured = errors.New("text generation is not configured")
	// ErrEmptyCompletion is returned when the provider answers without text.
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
)

// Request is a single-turn generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// New selects a provider from configuration.
func New(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(cfg, logger), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
