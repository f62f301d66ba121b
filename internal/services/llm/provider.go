package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ErrMissingAPIKey is returned when the selected provider has no key configured
var ErrMissingAPIKey = fmt.Errorf("API key not configured")

// ProviderFactory creates content generators for the configured providers
type ProviderFactory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	logger       arbor.ILogger
	geminiClient *genai.Client
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		geminiConfig: geminiConfig,
		claudeConfig: claudeConfig,
		llmConfig:    llmConfig,
		logger:       logger,
	}
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-haiku-4-5" -> Claude
// - "claude/claude-haiku-4-5" -> Claude (with prefix)
// - "gemini-flash-latest" -> Gemini
// - "gemini/gemini-flash-latest" -> Gemini (with prefix)
// - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the default model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.claudeConfig.Model
	default:
		return f.geminiConfig.Model
	}
}

// GetGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) GetGeminiClient(ctx context.Context) (*genai.Client, error) {
	if f.geminiClient != nil {
		return f.geminiClient, nil
	}
	if f.geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// GetClaudeClient returns a new Claude client
func (f *ProviderFactory) GetClaudeClient() (anthropic.Client, error) {
	if f.claudeConfig.APIKey == "" {
		return anthropic.Client{}, fmt.Errorf("claude: %w", ErrMissingAPIKey)
	}
	return anthropic.NewClient(option.WithAPIKey(f.claudeConfig.APIKey)), nil
}

// retryConfig applies llm.max_retries to the default backoff curve
func (f *ProviderFactory) retryConfig() *RetryConfig {
	config := NewDefaultRetryConfig()
	if f.llmConfig.MaxRetries >= 0 {
		config.MaxRetries = f.llmConfig.MaxRetries
	}
	return config
}

// NewGenerator returns a generator for model, or for the default provider's
// model when model is empty
func (f *ProviderFactory) NewGenerator(ctx context.Context, model string) (interfaces.ContentGenerator, error) {
	provider := f.DetectProvider(model)
	model = f.NormalizeModel(model)
	if model == "" {
		model = f.GetDefaultModel(provider)
	}

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Msg("Creating content generator")

	switch provider {
	case ProviderClaude:
		client, err := f.GetClaudeClient()
		if err != nil {
			return nil, err
		}
		return &ClaudeGenerator{
			messages:    &client.Messages,
			model:       model,
			maxTokens:   f.claudeConfig.MaxTokens,
			temperature: f.claudeConfig.Temperature,
			timeout:     common.ParseDurationOr(f.claudeConfig.Timeout, defaultTimeout),
			retry:       f.retryConfig(),
			wait:        waitContext,
			logger:      f.logger,
		}, nil
	case ProviderGemini:
		client, err := f.GetGeminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return &GeminiGenerator{
			models:      client.Models,
			model:       model,
			temperature: f.geminiConfig.Temperature,
			timeout:     common.ParseDurationOr(f.geminiConfig.Timeout, defaultTimeout),
			retry:       f.retryConfig(),
			wait:        waitContext,
			logger:      f.logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// ListGeminiModels returns the models the configured key can use for
// content generation
func (f *ProviderFactory) ListGeminiModels(ctx context.Context) ([]ModelInfo, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}
	return listGenerationModels(ctx, client.Models)
}

// Close releases cached clients
func (f *ProviderFactory) Close() error {
	f.geminiClient = nil
	return nil
}
