package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/templates"
)

// ErrNoArticles means there is nothing to summarize
var ErrNoArticles = errors.New("no articles to summarize")

// PromptData is what the prompt template can reference
type PromptData struct {
	HorizonText  string // e.g. "12小時"
	ArticleCount int
	SourceText   string
}

// Service turns stored articles into a market summary
type Service struct {
	generator   interfaces.ContentGenerator
	prompt      *templates.Template
	horizonText string
	clock       common.Clock
	logger      arbor.ILogger
}

// NewService creates a summary service
func NewService(generator interfaces.ContentGenerator, prompt *templates.Template, horizonText string, clock common.Clock, logger arbor.ILogger) *Service {
	return &Service{
		generator:   generator,
		prompt:      prompt,
		horizonText: horizonText,
		clock:       clock,
		logger:      logger,
	}
}

// Summarize renders the prompt over articles and asks the generator for a
// report. A generator failure is returned as is; the caller treats it as fatal.
func (s *Service) Summarize(ctx context.Context, articles []*models.ResolvedArticle) (*models.Summary, error) {
	if len(articles) == 0 {
		return nil, ErrNoArticles
	}

	prompt, err := s.prompt.Render(PromptData{
		HorizonText:  s.horizonText,
		ArticleCount: len(articles),
		SourceText:   BuildSourceText(articles),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("articles", len(articles)).
		Int("prompt_bytes", len(prompt)).
		Str("provider", s.generator.Provider()).
		Str("model", s.generator.Model()).
		Msg("Requesting summary")

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	return &models.Summary{
		ID:                 common.NewSummaryID(),
		Text:               strings.TrimSpace(text),
		SourceArticleCount: len(articles),
		Provider:           s.generator.Provider(),
		Model:              s.generator.Model(),
		CreatedAt:          s.clock.Now(),
	}, nil
}

// BuildSourceText concatenates articles in the order given
func BuildSourceText(articles []*models.ResolvedArticle) string {
	var b strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&b, "--- 新聞標題: %s ---\n%s\n\n", a.Headline, a.Content)
	}
	return b.String()
}

// HorizonPhrase renders a horizon for the greeting line, e.g. 12h -> "12小時"
func HorizonPhrase(horizon time.Duration) string {
	switch {
	case horizon >= time.Hour && horizon%time.Hour == 0:
		return fmt.Sprintf("%d小時", int(horizon/time.Hour))
	case horizon >= time.Minute:
		return fmt.Sprintf("%d分鐘", int(horizon/time.Minute))
	default:
		return horizon.String()
	}
}
