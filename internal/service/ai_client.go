package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ridequery/internal/config"
)

// LanguageModel is the interface for text-completion providers
type LanguageModel interface {
	// Complete sends one system+user exchange and returns the raw reply text
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// IsEnabled returns whether the client is configured and ready
	IsEnabled() bool

	// Name identifies the provider in logs
	Name() string
}

// CompletionRequest is a provider-neutral single-turn completion
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONMode    bool // ask the provider for a JSON object reply when it supports it
}

// Ensure both providers implement LanguageModel
var (
	_ LanguageModel = (*OpenAIClient)(nil)
	_ LanguageModel = (*GeminiClient)(nil)
)

// NewLanguageModel builds the provider selected by LLM_PROVIDER.
// A provider without credentials is still returned; it reports IsEnabled() == false.
func NewLanguageModel(cfg *config.Config, logger *zap.Logger) (LanguageModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.LLM.Provider {
	case "", "openai":
		return NewOpenAIClient(&cfg.OpenAI, logger), nil
	case "gemini":
		if !cfg.Gemini.Enabled {
			logger.Warn("Gemini provider selected without GEMINI_API_KEY, interpretation disabled")
			return &GeminiClient{config: &cfg.Gemini, logger: logger}, nil
		}
		return NewGeminiClient(&cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLM.Provider)
	}
}
