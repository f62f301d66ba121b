package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

const defaultTimeout = 5 * time.Minute

func callTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// geminiModels is the part of genai.Models the generator calls
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements interfaces.ContentGenerator with Gemini
type GeminiGenerator struct {
	models      geminiModels
	model       string
	temperature float32
	timeout     time.Duration
	retry       *RetryConfig
	wait        waitFunc
	logger      arbor.ILogger
}

// Generate sends prompt as a single user turn
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if g.temperature > 0 {
		config.Temperature = genai.Ptr(g.temperature)
	}
	contents := genai.Text(prompt)

	start := time.Now()
	text, err := retry(ctx, g.retry, g.wait, g.logger, "Gemini", func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout(g.timeout))
		defer cancel()

		resp, err := g.models.GenerateContent(callCtx, g.model, contents, config)
		if err != nil {
			return "", err
		}
		if resp == nil || len(resp.Candidates) == 0 {
			return "", fmt.Errorf("empty response from Gemini API")
		}
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("empty text in Gemini response")
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}

	g.logger.Info().
		Str("model", g.model).
		Int("prompt_bytes", len(prompt)).
		Int("response_bytes", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Gemini content generated")
	return text, nil
}

func (g *GeminiGenerator) Provider() string { return string(ProviderGemini) }
func (g *GeminiGenerator) Model() string    { return g.model }

// ModelInfo describes one model available to the configured key
type ModelInfo struct {
	Name             string
	DisplayName      string
	InputTokenLimit  int32
	OutputTokenLimit int32
}

// modelLister is the part of genai.Models used for discovery
type modelLister interface {
	All(ctx context.Context) iter.Seq2[*genai.Model, error]
}

// listGenerationModels keeps models that support generateContent
func listGenerationModels(ctx context.Context, lister modelLister) ([]ModelInfo, error) {
	var models []ModelInfo
	for m, err := range lister.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", err)
		}
		if !supportsGeneration(m.SupportedActions) {
			continue
		}
		models = append(models, ModelInfo{
			Name:             strings.TrimPrefix(m.Name, "models/"),
			DisplayName:      m.DisplayName,
			InputTokenLimit:  m.InputTokenLimit,
			OutputTokenLimit: m.OutputTokenLimit,
		})
	}
	return models, nil
}

func supportsGeneration(actions []string) bool {
	for _, action := range actions {
		if action == "generateContent" {
			return true
		}
	}
	return false
}
