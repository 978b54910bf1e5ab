// Package llm wraps the language models that write SQL and summaries.
// Providers make exactly one request per call; retrying belongs to the caller.
package llm

import (
	"context"
	"fmt"

	"github.com/opsassist/opsassist/internal/config"
)

type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// New builds the provider selected by cfg.Provider.
func New(cfg config.AIConfig) (Model, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
