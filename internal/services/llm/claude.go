package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
)

// claudeMessages is the part of anthropic.MessageService the generator calls
type claudeMessages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ClaudeGenerator implements interfaces.ContentGenerator with Claude
type ClaudeGenerator struct {
	messages    claudeMessages
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	retry       *RetryConfig
	wait        waitFunc
	logger      arbor.ILogger
}

// Generate sends prompt as a single user message
func (g *ClaudeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	maxTokens := g.maxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if g.temperature > 0 {
		params.Temperature = anthropic.Float(float64(g.temperature))
	}

	start := time.Now()
	text, err := retry(ctx, g.retry, g.wait, g.logger, "Claude", func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout(g.timeout))
		defer cancel()

		resp, err := g.messages.New(callCtx, params)
		if err != nil {
			return "", err
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if strings.TrimSpace(text.String()) == "" {
			return "", fmt.Errorf("empty response from Claude API")
		}
		return text.String(), nil
	})
	if err != nil {
		return "", err
	}

	g.logger.Info().
		Str("model", g.model).
		Int("prompt_bytes", len(prompt)).
		Int("response_bytes", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Claude content generated")
	return text, nil
}

func (g *ClaudeGenerator) Provider() string { return string(ProviderClaude) }
func (g *ClaudeGenerator) Model() string    { return g.model }
