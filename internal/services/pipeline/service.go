// Package pipeline runs the hunt, analyze and narrate stages in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/services/crawler"
	"github.com/ternarybob/marketcast/internal/services/podcast"
	"github.com/ternarybob/marketcast/internal/services/summary"
)

const (
	stampLayout   = "20060102_15"
	reportPrefix  = "reports/"
	podcastPrefix = "podcasts/"
)

// ErrNoArticles is returned by Analyze when the store is empty
var ErrNoArticles = summary.ErrNoArticles

// Hunter discovers accepted articles; *crawler.Discovery satisfies it
type Hunter interface {
	Run(ctx context.Context) (*crawler.DiscoveryResult, error)
}

// Narrator turns a markdown report into an audio file; *podcast.Builder satisfies it
type Narrator interface {
	Build(ctx context.Context, markdown, path string) (*podcast.BuildResult, error)
}

// Config carries the pipeline settings resolved from common.PipelineConfig
type Config struct {
	ResetOnRun bool
	Location   *time.Location // zone for artifact file names
	ReportDir  string
	PodcastDir string
	KeepReport bool
}

// NewConfig resolves the timezone in cfg
func NewConfig(cfg common.PipelineConfig) (Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid pipeline.timezone %q: %w", cfg.Timezone, err)
	}
	return Config{
		ResetOnRun: cfg.ResetOnRun,
		Location:   loc,
		ReportDir:  cfg.ReportDir,
		PodcastDir: cfg.PodcastDir,
		KeepReport: cfg.KeepReport,
	}, nil
}

// Service wires the stages to storage and the external collaborators.
// store may be nil, in which case uploads are skipped.
type Service struct {
	config     Config
	storage    interfaces.StorageManager
	hunter     Hunter
	summarizer interfaces.Summarizer
	narrator   Narrator
	store      interfaces.ObjectStore
	clock      common.Clock
	logger     arbor.ILogger
}

// NewService creates a pipeline service
func NewService(config Config, storage interfaces.StorageManager, hunter Hunter, summarizer interfaces.Summarizer, narrator Narrator, store interfaces.ObjectStore, clock common.Clock, logger arbor.ILogger) *Service {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Service{
		config:     config,
		storage:    storage,
		hunter:     hunter,
		summarizer: summarizer,
		narrator:   narrator,
		store:      store,
		clock:      clock,
		logger:     logger,
	}
}

// RunStage runs a single stage, or all three for models.StageAll
func (s *Service) RunStage(ctx context.Context, stage models.Stage) (*models.RunReport, error) {
	report := &models.RunReport{RunID: common.NewRunID(), StartedAt: s.clock.Now()}
	logger := s.logger.WithCorrelationId(report.RunID)
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	logger.Info().Str("stage", string(stage)).Msg("Pipeline run started")

	var err error
	switch stage {
	case models.StageHunt:
		report.Hunt, err = s.Hunt(ctx)
	case models.StageAnalyze:
		report.Analyze, err = s.analyze(ctx, report.StartedAt)
	case models.StageNarrate:
		report.Narrate, err = s.narrate(ctx, report.StartedAt)
	case models.StageAll:
		err = s.runAll(ctx, report)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	if err != nil {
		logger.Error().Err(err).Str("stage", string(stage)).Msg("Pipeline run failed")
		return report, err
	}

	logger.Info().Str("stage", string(stage)).Dur("duration", time.Since(start)).Msg("Pipeline run completed")
	return report, nil
}

// RunAll runs hunt, analyze and narrate, stopping at the first failure
func (s *Service) RunAll(ctx context.Context) (*models.RunReport, error) {
	return s.RunStage(ctx, models.StageAll)
}

func (s *Service) runAll(ctx context.Context, report *models.RunReport) error {
	var err error
	if report.Hunt, err = s.Hunt(ctx); err != nil {
		return fmt.Errorf("hunt: %w", err)
	}
	if report.Analyze, err = s.analyze(ctx, report.StartedAt); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if report.Narrate, err = s.narrate(ctx, report.StartedAt); err != nil {
		return fmt.Errorf("narrate: %w", err)
	}
	return nil
}

// Hunt optionally clears storage, runs discovery and stores every accepted
// article with insert-or-ignore semantics.
func (s *Service) Hunt(ctx context.Context) (*models.HuntReport, error) {
	start := time.Now()

	if s.config.ResetOnRun {
		if err := s.storage.ArticleStorage().ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("clear articles: %w", err)
		}
		if err := s.storage.SummaryStorage().ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("clear summaries: %w", err)
		}
		s.logger.Info().Msg("Cleared stored articles and summaries")
	}

	result, err := s.hunter.Run(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.HuntReport{
		Window:      result.Window,
		StopReason:  string(result.Scroll.Reason),
		ScrollSteps: result.Scroll.Steps,
		Candidates:  result.Candidates,
		Accepted:    len(result.Accepted),
		Failed:      result.Failed,
		Excluded:    result.Excluded.Total(),
	}

	articles := s.storage.ArticleStorage()
	for i := range result.Accepted {
		article := result.Accepted[i]
		inserted, err := articles.AddArticle(ctx, &article)
		if err != nil {
			return nil, fmt.Errorf("store article %s: %w", article.URL, err)
		}
		if inserted {
			report.Inserted++
		} else {
			report.Duplicates++
			s.logger.Debug().Str("url", article.URL).Msg("Article already stored")
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info().
		Int("accepted", report.Accepted).
		Int("inserted", report.Inserted).
		Int("duplicates", report.Duplicates).
		Int("failed", report.Failed).
		Int("excluded", report.Excluded).
		Dur("duration", report.Duration).
		Msg("Hunt complete")

	return report, nil
}

// Analyze summarizes every stored article and writes the report file
func (s *Service) Analyze(ctx context.Context) (*models.AnalyzeReport, error) {
	return s.analyze(ctx, s.clock.Now())
}

func (s *Service) analyze(ctx context.Context, at time.Time) (*models.AnalyzeReport, error) {
	start := time.Now()

	articles, err := s.storage.ArticleStorage().ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	if len(articles) == 0 {
		return nil, ErrNoArticles
	}

	sum, err := s.summarizer.Summarize(ctx, articles)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SummaryStorage().AddSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}

	name := "summary_" + s.stamp(at) + ".md"
	path := filepath.Join(s.config.ReportDir, name)
	if err := writeFile(path, []byte(sum.Text)); err != nil {
		return nil, err
	}

	report := &models.AnalyzeReport{
		SummaryID:  sum.ID,
		Articles:   sum.SourceArticleCount,
		ReportFile: path,
	}

	if key, ok := s.upload(ctx, path, reportPrefix+name); ok {
		report.UploadedKey = key
		if !s.config.KeepReport {
			if err := os.Remove(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove local report")
			} else {
				report.ReportFile = ""
			}
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info().
		Str("summary_id", report.SummaryID).
		Int("articles", report.Articles).
		Str("report_file", path).
		Dur("duration", report.Duration).
		Msg("Analyze complete")

	return report, nil
}

// Narrate synthesizes the latest summary into an audio file
func (s *Service) Narrate(ctx context.Context) (*models.NarrateReport, error) {
	return s.narrate(ctx, s.clock.Now())
}

func (s *Service) narrate(ctx context.Context, at time.Time) (*models.NarrateReport, error) {
	start := time.Now()

	sum, err := s.storage.SummaryStorage().GetLatestSummary(ctx)
	if err != nil {
		if errors.Is(err, interfaces.ErrSummaryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load latest summary: %w", err)
	}

	name := "podcast_" + s.stamp(at) + ".mp3"
	path := filepath.Join(s.config.PodcastDir, name)
	built, err := s.narrator.Build(ctx, sum.Text, path)
	if err != nil {
		return nil, err
	}

	report := &models.NarrateReport{
		SummaryID:  sum.ID,
		Chunks:     built.Chunks,
		Oversized:  built.Oversized,
		AudioFile:  built.Path,
		AudioBytes: built.AudioBytes,
	}
	if key, ok := s.upload(ctx, built.Path, podcastPrefix+name); ok {
		report.UploadedKey = key
	}

	report.Duration = time.Since(start)
	s.logger.Info().
		Str("summary_id", report.SummaryID).
		Int("chunks", report.Chunks).
		Int("audio_bytes", report.AudioBytes).
		Str("audio_file", report.AudioFile).
		Dur("duration", report.Duration).
		Msg("Narrate complete")

	return report, nil
}

// upload is best effort: failures are logged and the stage carries on
func (s *Service) upload(ctx context.Context, path, key string) (string, bool) {
	if s.store == nil {
		s.logger.Info().Str("path", path).Msg("Object store not configured, skipping upload")
		return "", false
	}
	uploaded, err := s.store.UploadFile(ctx, path, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Str("key", key).Msg("Upload failed")
		return "", false
	}
	return uploaded, true
}

func (s *Service) stamp(t time.Time) string {
	return t.In(s.config.Location).Format(stampLayout)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
