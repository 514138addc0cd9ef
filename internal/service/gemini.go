package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"ridequery/internal/config"
)

// GeminiClient completes prompts with Google's Gemini API
type GeminiClient struct {
	client *genai.Client
	config *config.GeminiConfig
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini client from configuration
func NewGeminiClient(cfg *config.GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: cfg,
		logger: logger.Named("gemini"),
	}, nil
}

// IsEnabled returns whether the client is configured and ready
func (c *GeminiClient) IsEnabled() bool {
	return c.client != nil && c.config.Enabled
}

// Name identifies the provider in logs
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Complete sends one system+user exchange to Gemini
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("Gemini API is not enabled (missing API key)")
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(temperature)),
		MaxOutputTokens:   int32(maxTokens),
	}
	if req.JSONMode {
		genCfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.User), genCfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}
