package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/services/crawler"
	"github.com/ternarybob/marketcast/internal/services/llm"
	"github.com/ternarybob/marketcast/internal/services/objectstore"
	"github.com/ternarybob/marketcast/internal/services/pipeline"
	"github.com/ternarybob/marketcast/internal/services/podcast"
	"github.com/ternarybob/marketcast/internal/services/scheduler"
	"github.com/ternarybob/marketcast/internal/services/speech"
	"github.com/ternarybob/marketcast/internal/services/summary"
	"github.com/ternarybob/marketcast/internal/storage"
	"github.com/ternarybob/marketcast/internal/templates"
)

const (
	pipelineJobName       = "pipeline"
	defaultStartupTimeout = 60 * time.Second
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	Clock          common.Clock
	StorageManager interfaces.StorageManager

	// Hunt
	Discovery *crawler.Discovery

	// Analyze and narrate collaborators are built on first use so a hunt-only
	// run needs no LLM key or speech credentials.
	Providers  *llm.ProviderFactory
	summarizer *lazySummarizer
	narrator   *lazyNarrator

	ObjectStore interfaces.ObjectStore
	Pipeline    *pipeline.Service

	SchedulerService *scheduler.Service
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Clock:  common.SystemClock{},
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().Msg("Application initialized")
	return app, nil
}

func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", string(a.Config.Storage.Type)).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	horizon, err := a.Config.Pipeline.HorizonDuration()
	if err != nil {
		return err
	}

	a.Discovery = a.newDiscovery(horizon)

	a.Providers = llm.NewProviderFactory(&a.Config.Gemini, &a.Config.Claude, &a.Config.LLM, a.Logger)
	a.summarizer = &lazySummarizer{build: func(ctx context.Context) (interfaces.Summarizer, error) {
		return a.newSummaryService(ctx, horizon)
	}}
	a.narrator = &lazyNarrator{build: a.newPodcastBuilder}

	s3Store, err := objectstore.NewS3Store(ctx, a.Config.S3, a.Logger)
	if err != nil {
		return err
	}
	// Keep the interface nil when disabled so the pipeline skips uploads
	if s3Store != nil {
		a.ObjectStore = s3Store
	} else {
		a.Logger.Info().Msg("s3.bucket not set, artifacts stay local")
	}

	pipelineConfig, err := pipeline.NewConfig(a.Config.Pipeline)
	if err != nil {
		return err
	}
	a.Pipeline = pipeline.NewService(
		pipelineConfig,
		a.StorageManager,
		a.Discovery,
		a.summarizer,
		a.narrator,
		a.ObjectStore,
		a.Clock,
		a.Logger,
	)

	return nil
}

func (a *App) newDiscovery(horizon time.Duration) *crawler.Discovery {
	c := a.Config.Crawler
	listingSelectors := crawler.ListingSelectors{
		Item:     c.Selectors.Item,
		Headline: c.Selectors.Headline,
	}

	fetcher := crawler.NewHTTPFetcher(a.Logger,
		crawler.WithUserAgent(c.UserAgent),
		crawler.WithAcceptLanguage(c.AcceptLanguage),
		crawler.WithRequestTimeout(common.ParseDurationOr(c.RequestTimeout, crawler.DefaultRequestTimeout)),
		crawler.WithRequestRate(c.RequestRate),
	)
	extractor := crawler.NewExtractor(fetcher, crawler.ArticleSelectors{
		Timestamp: c.Selectors.Timestamp,
		TimeAttr:  c.Selectors.TimeAttr,
		Content:   c.Selectors.Content,
		Paragraph: c.Selectors.Paragraph,
	}, a.Logger)

	driverFactory := crawler.NewChromeDriverFactory(crawler.ChromeDriverConfig{
		UserAgent:      c.UserAgent,
		AcceptLanguage: c.AcceptLanguage,
		Headless:       c.Headless,
		NoSandbox:      c.NoSandbox,
		StartupTimeout: defaultStartupTimeout,
		InitialWait:    common.ParseDurationOr(c.InitialWait, 3*time.Second),
	}, a.Logger)

	scroller := crawler.NewScrollController(crawler.ScrollConfig{
		SettleDelay: common.ParseDurationOr(c.SettleDelay, 10*time.Second),
		MaxSteps:    c.MaxScrollSteps,
		Timeout:     common.ParseDurationOr(c.ScrollTimeout, 10*time.Minute),
		Selectors:   listingSelectors,
	}, crawler.ContextSleep, a.Logger)

	return crawler.NewDiscovery(crawler.DiscoveryConfig{
		ListingURL:  c.ListingURL,
		BaseURL:     c.BaseURL,
		Horizon:     horizon,
		Concurrency: c.MaxConcurrency,
		Selectors:   listingSelectors,
	}, a.Clock, driverFactory, scroller, extractor, a.Logger)
}

func (a *App) newSummaryService(ctx context.Context, horizon time.Duration) (interfaces.Summarizer, error) {
	generator, err := a.Providers.NewGenerator(ctx, "")
	if err != nil {
		return nil, err
	}

	prompt, err := templates.GetTemplate(templates.MarketSummary, a.Config.Summary.PromptFile)
	if err != nil {
		return nil, err
	}

	horizonText := a.Config.Summary.HorizonText
	if horizonText == "" {
		horizonText = summary.HorizonPhrase(horizon)
	}

	a.Logger.Info().
		Str("provider", generator.Provider()).
		Str("model", generator.Model()).
		Str("horizon_text", horizonText).
		Msg("Summary service ready")

	return summary.NewService(generator, prompt, horizonText, a.Clock, a.Logger), nil
}

func (a *App) newPodcastBuilder(ctx context.Context) (pipeline.Narrator, error) {
	opts, err := speech.CredentialOptions(ctx, a.Config.Speech)
	if err != nil {
		return nil, err
	}
	synth, err := speech.NewGoogleSynthesizer(ctx, a.Config.Speech, a.Logger, opts...)
	if err != nil {
		return nil, err
	}
	return podcast.NewBuilder(synth, a.Config.Speech.ByteLimit, a.Logger), nil
}

// Run executes one pipeline stage
func (a *App) Run(ctx context.Context, stage models.Stage) (*models.RunReport, error) {
	return a.Pipeline.RunStage(ctx, stage)
}

// StartScheduler registers the full pipeline on pipeline.schedule and starts
// dispatching. Evaluation uses pipeline.timezone.
func (a *App) StartScheduler() error {
	if err := common.ValidateSchedule(a.Config.Pipeline.Schedule); err != nil {
		return fmt.Errorf("invalid pipeline.schedule: %w", err)
	}

	loc, err := time.LoadLocation(a.Config.Pipeline.Timezone)
	if err != nil {
		return fmt.Errorf("invalid pipeline.timezone: %w", err)
	}

	a.SchedulerService = scheduler.NewService(loc, a.Logger)
	err = a.SchedulerService.RegisterJob(pipelineJobName, a.Config.Pipeline.Schedule, "hunt, analyze and narrate", func(ctx context.Context) error {
		_, err := a.Pipeline.RunAll(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := a.SchedulerService.Start(); err != nil {
		return err
	}

	if status, err := a.SchedulerService.GetJobStatus(pipelineJobName); err == nil && status.NextRun != nil {
		a.Logger.Info().
			Str("schedule", status.Schedule).
			Str("timezone", loc.String()).
			Str("next_run", status.NextRun.In(loc).Format(time.RFC3339)).
			Msg("Pipeline scheduled")
	}
	return nil
}

// Close stops the scheduler and releases storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM providers")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}

// lazySummarizer builds the summary service on first use and caches a
// successful build; a failed build is retried on the next call.
type lazySummarizer struct {
	mu    sync.Mutex
	build func(ctx context.Context) (interfaces.Summarizer, error)
	svc   interfaces.Summarizer
}

func (l *lazySummarizer) Summarize(ctx context.Context, articles []*models.ResolvedArticle) (*models.Summary, error) {
	l.mu.Lock()
	if l.svc == nil {
		svc, err := l.build(ctx)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.svc = svc
	}
	svc := l.svc
	l.mu.Unlock()
	return svc.Summarize(ctx, articles)
}

type lazyNarrator struct {
	mu    sync.Mutex
	build func(ctx context.Context) (pipeline.Narrator, error)
	n     pipeline.Narrator
}

func (l *lazyNarrator) Build(ctx context.Context, markdown, path string) (*podcast.BuildResult, error) {
	l.mu.Lock()
	if l.n == nil {
		n, err := l.build(ctx)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.n = n
	}
	n := l.n
	l.mu.Unlock()
	return n.Build(ctx, markdown, path)
}
