package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/marketcast/internal/models"
)

// ErrSummaryNotFound is returned when no summary has been stored yet
var ErrSummaryNotFound = errors.New("summary not found")

// ArticleStorage persists accepted articles keyed by URL
type ArticleStorage interface {
	// AddArticle inserts the article unless its URL is already stored.
	// inserted is false for a duplicate; that is not an error.
	AddArticle(ctx context.Context, article *models.ResolvedArticle) (inserted bool, err error)

	// ListArticles returns every stored article, newest PublishedAt first
	ListArticles(ctx context.Context) ([]*models.ResolvedArticle, error)

	CountArticles(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) error
}

// SummaryStorage persists generated summaries
type SummaryStorage interface {
	AddSummary(ctx context.Context, summary *models.Summary) error
	GetLatestSummary(ctx context.Context) (*models.Summary, error)
	ClearAll(ctx context.Context) error
}

// StorageManager bundles the stores behind one backend
type StorageManager interface {
	ArticleStorage() ArticleStorage
	SummaryStorage() SummaryStorage
	Close() error
}
