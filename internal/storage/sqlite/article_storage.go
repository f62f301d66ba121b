package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
)

// ArticleStorage implements interfaces.ArticleStorage for SQLite
type ArticleStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex // Prevents SQLITE_BUSY errors on concurrent writes
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

// AddArticle inserts the article or ignores it when the URL already exists
func (s *ArticleStorage) AddArticle(ctx context.Context, article *models.ResolvedArticle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scrapedAt := article.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	query := `
		INSERT OR IGNORE INTO articles (url, headline, content, published_at, scraped_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.db.ExecContext(ctx, query,
		article.URL,
		article.Headline,
		article.Content,
		article.PublishedAt.UTC().UnixNano(),
		scrapedAt.UTC().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListArticles returns all articles, newest publish time first
func (s *ArticleStorage) ListArticles(ctx context.Context) ([]*models.ResolvedArticle, error) {
	query := `
		SELECT url, headline, content, published_at, scraped_at
		FROM articles
		ORDER BY published_at DESC, id ASC
	`
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.ResolvedArticle
	for rows.Next() {
		var (
			a                    models.ResolvedArticle
			publishedAt, scraped int64
		)
		if err := rows.Scan(&a.URL, &a.Headline, &a.Content, &publishedAt, &scraped); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.PublishedAt = fromUnixNano(publishedAt)
		a.ScrapedAt = fromUnixNano(scraped)
		articles = append(articles, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return articles, nil
}

// CountArticles returns the number of stored articles
func (s *ArticleStorage) CountArticles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// ClearAll deletes every article
func (s *ArticleStorage) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM articles`)
	if err != nil {
		return fmt.Errorf("failed to clear articles: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		s.logger.Debug().Int64("deleted", n).Msg("Cleared articles")
	}
	return nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
