package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
)

// SummaryStorage implements interfaces.SummaryStorage for SQLite
type SummaryStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSummaryStorage creates a new SummaryStorage instance
func NewSummaryStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SummaryStorage {
	return &SummaryStorage{
		db:     db,
		logger: logger,
	}
}

// AddSummary stores a summary; CreatedAt defaults to now
func (s *SummaryStorage) AddSummary(ctx context.Context, summary *models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO summaries (id, summary_text, source_article_count, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.db.ExecContext(ctx, query,
		summary.ID,
		summary.Text,
		summary.SourceArticleCount,
		summary.Provider,
		summary.Model,
		summary.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// GetLatestSummary returns the most recently created summary
func (s *SummaryStorage) GetLatestSummary(ctx context.Context) (*models.Summary, error) {
	query := `
		SELECT id, summary_text, source_article_count, provider, model, created_at
		FROM summaries
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`
	var (
		summary         models.Summary
		provider, model sql.NullString
		createdAt       int64
	)
	err := s.db.db.QueryRowContext(ctx, query).Scan(
		&summary.ID,
		&summary.Text,
		&summary.SourceArticleCount,
		&provider,
		&model,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}

	summary.Provider = provider.String
	summary.Model = model.String
	summary.CreatedAt = fromUnixNano(createdAt)
	return &summary, nil
}

// ClearAll deletes every summary
func (s *SummaryStorage) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM summaries`); err != nil {
		return fmt.Errorf("failed to clear summaries: %w", err)
	}
	return nil
}
