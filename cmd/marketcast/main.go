package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/app"
	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/services/llm"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	stageFlag    = flag.String("stage", string(models.StageAll), "Stage to run: all, hunt, analyze or narrate")
	serve        = flag.Bool("serve", false, "Run the full pipeline on pipeline.schedule until interrupted")
	horizonFlag  = flag.String("horizon", "", "Maximum article age, e.g. 12h (overrides config)")
	scheduleFlag = flag.String("schedule", "", "Cron expression for -serve (overrides config)")
	listModels   = flag.Bool("list-models", false, "List Gemini models available for content generation and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	os.Exit(run())
}

func run() int {
	defer common.RecoverWithCrashFile()

	flag.Parse()
	common.LoadVersionFromFile()

	if *showVersion || *showVersionV {
		fmt.Printf("%s version %s\n", common.AppName, common.GetFullVersion())
		return 0
	}

	stage, ok := models.ParseStage(*stageFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid -stage %q: want all, hunt, analyze or narrate\n", *stageFlag)
		return 2
	}

	// Startup sequence:
	// 1. Load config (defaults -> file1 -> file2 -> ... -> .env -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("marketcast.toml"); err == nil {
			configFiles = append(configFiles, "marketcast.toml")
		} else if _, err := os.Stat("deployments/local/marketcast.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/marketcast.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		return 1
	}
	common.ApplyFlagOverrides(config, *horizonFlag, *scheduleFlag)
	if err := config.Validate(); err != nil {
		arbor.NewLogger().Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler(common.LogsDir(config))
	common.PrintBanner()

	logger.Debug().
		Str("storage_type", string(config.Storage.Type)).
		Str("listing_url", config.Crawler.ListingURL).
		Str("horizon", config.Pipeline.Horizon).
		Str("llm_provider", string(config.LLM.DefaultProvider)).
		Bool("s3_enabled", config.S3.Bucket != "").
		Msg("Resolved configuration (sanitized)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listModels {
		return printModels(ctx, config, logger)
	}

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	if *serve {
		if err := application.StartScheduler(); err != nil {
			logger.Error().Err(err).Msg("Failed to start scheduler")
			return 1
		}
		logger.Info().Msg("Scheduler running - Press Ctrl+C to stop")
		<-ctx.Done()
		logger.Info().Msg("Interrupt signal received, shutting down")
		return 0
	}

	report, err := application.Run(ctx, stage)
	logReport(logger, report)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("Run interrupted")
		}
		return 1
	}
	return 0
}

func printModels(ctx context.Context, config *common.Config, logger arbor.ILogger) int {
	factory := llm.NewProviderFactory(&config.Gemini, &config.Claude, &config.LLM, logger)
	defer factory.Close()

	available, err := factory.ListGeminiModels(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list models")
		return 1
	}

	for _, m := range available {
		fmt.Printf("%-40s %-40s in=%d out=%d\n", m.Name, m.DisplayName, m.InputTokenLimit, m.OutputTokenLimit)
	}
	logger.Info().Int("count", len(available)).Msg("Listed generation models")
	return 0
}

func logReport(logger arbor.ILogger, report *models.RunReport) {
	if report == nil {
		return
	}
	event := logger.Info().Str("run_id", report.RunID).Dur("duration", report.Duration)
	if h := report.Hunt; h != nil {
		event = event.Int("inserted", h.Inserted).Int("duplicates", h.Duplicates).Str("stop_reason", h.StopReason)
	}
	if a := report.Analyze; a != nil {
		event = event.Str("summary_id", a.SummaryID).Int("articles", a.Articles)
		if a.UploadedKey != "" {
			event = event.Str("report_key", a.UploadedKey)
		}
	}
	if n := report.Narrate; n != nil {
		event = event.Str("audio_file", n.AudioFile).Int("chunks", n.Chunks)
		if n.UploadedKey != "" {
			event = event.Str("podcast_key", n.UploadedKey)
		}
	}
	event.Msg("Run report")
}
