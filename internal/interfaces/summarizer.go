package interfaces

import (
	"context"

	"github.com/ternarybob/marketcast/internal/models"
)

// ContentGenerator sends one prompt to a language model and returns its text
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string) (text string, err error)
	Provider() string
	Model() string
}

// Summarizer turns the stored articles into a report
type Summarizer interface {
	Summarize(ctx context.Context, articles []*models.ResolvedArticle) (*models.Summary, error)
}
