package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
)

// articleRecord is keyed by URL. Times are kept as unix nanoseconds so
// badgerhold sorts them numerically.
type articleRecord struct {
	URL             string
	Headline        string
	Content         string
	PublishedAtNano int64
	ScrapedAtNano   int64
}

func (r *articleRecord) toModel() *models.ResolvedArticle {
	return &models.ResolvedArticle{
		Headline:    r.Headline,
		URL:         r.URL,
		PublishedAt: time.Unix(0, r.PublishedAtNano).UTC(),
		Content:     r.Content,
		ScrapedAt:   time.Unix(0, r.ScrapedAtNano).UTC(),
	}
}

// ArticleStorage implements interfaces.ArticleStorage for Badger
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex // serializes the exists-check inside Insert
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

// AddArticle inserts the article or ignores it when the URL already exists
func (s *ArticleStorage) AddArticle(ctx context.Context, article *models.ResolvedArticle) (bool, error) {
	if article.URL == "" {
		return false, fmt.Errorf("article URL is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scrapedAt := article.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}
	record := &articleRecord{
		URL:             article.URL,
		Headline:        article.Headline,
		Content:         article.Content,
		PublishedAtNano: article.PublishedAt.UnixNano(),
		ScrapedAtNano:   scrapedAt.UnixNano(),
	}

	if err := s.db.Store().Insert(article.URL, record); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert article: %w", err)
	}
	return true, nil
}

// ListArticles returns all articles, newest publish time first
func (s *ArticleStorage) ListArticles(ctx context.Context) ([]*models.ResolvedArticle, error) {
	var records []articleRecord
	query := (&badgerhold.Query{}).SortBy("PublishedAtNano").Reverse()
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	articles := make([]*models.ResolvedArticle, len(records))
	for i := range records {
		articles[i] = records[i].toModel()
	}
	return articles, nil
}

// CountArticles returns the number of stored articles
func (s *ArticleStorage) CountArticles(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&articleRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return int(count), nil
}

// ClearAll deletes every article
func (s *ArticleStorage) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().DeleteMatching(&articleRecord{}, nil); err != nil {
		return fmt.Errorf("failed to clear articles: %w", err)
	}
	return nil
}
