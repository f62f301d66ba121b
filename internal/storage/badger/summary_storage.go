package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
)

type summaryRecord struct {
	ID                 string
	Text               string
	SourceArticleCount int
	Provider           string
	Model              string
	CreatedAtNano      int64
}

// SummaryStorage implements interfaces.SummaryStorage for Badger
type SummaryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSummaryStorage creates a new SummaryStorage instance
func NewSummaryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SummaryStorage {
	return &SummaryStorage{
		db:     db,
		logger: logger,
	}
}

// AddSummary stores a summary; CreatedAt defaults to now
func (s *SummaryStorage) AddSummary(ctx context.Context, summary *models.Summary) error {
	if summary.ID == "" {
		return fmt.Errorf("summary ID is required")
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	record := &summaryRecord{
		ID:                 summary.ID,
		Text:               summary.Text,
		SourceArticleCount: summary.SourceArticleCount,
		Provider:           summary.Provider,
		Model:              summary.Model,
		CreatedAtNano:      summary.CreatedAt.UnixNano(),
	}
	if err := s.db.Store().Upsert(summary.ID, record); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// GetLatestSummary returns the most recently created summary
func (s *SummaryStorage) GetLatestSummary(ctx context.Context) (*models.Summary, error) {
	var records []summaryRecord
	query := (&badgerhold.Query{}).SortBy("CreatedAtNano").Reverse().Limit(1)
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}
	if len(records) == 0 {
		return nil, interfaces.ErrSummaryNotFound
	}

	r := records[0]
	return &models.Summary{
		ID:                 r.ID,
		Text:               r.Text,
		SourceArticleCount: r.SourceArticleCount,
		Provider:           r.Provider,
		Model:              r.Model,
		CreatedAt:          time.Unix(0, r.CreatedAtNano).UTC(),
	}, nil
}

// ClearAll deletes every summary
func (s *SummaryStorage) ClearAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&summaryRecord{}, nil); err != nil {
		return fmt.Errorf("failed to clear summaries: %w", err)
	}
	return nil
}
