package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Crawler     CrawlerConfig  `toml:"crawler"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Summary     SummaryConfig  `toml:"summary"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Claude      ClaudeConfig   `toml:"claude"`
	LLM         LLMConfig      `toml:"llm"`
	Speech      SpeechConfig   `toml:"speech"`
	S3          S3Config       `toml:"s3"`
}

// StorageType selects the article/summary store backend
type StorageType string

const (
	StorageTypeSQLite StorageType = "sqlite"
	StorageTypeBadger StorageType = "badger"
)

type StorageConfig struct {
	Type   StorageType  `toml:"type"` // "sqlite" (default) or "badger"
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path, ":memory:" for an in-memory store
	WALMode       bool   `toml:"wal_mode"`        // Enable write-ahead logging for file databases
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Wait for locks instead of failing with SQLITE_BUSY
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for console/file output (default: "15:04:05")
	Dir        string   `toml:"dir"`         // Log directory; empty uses <exe dir>/logs
}

// CrawlerConfig holds the listing and article scraping settings
type CrawlerConfig struct {
	ListingURL     string `toml:"listing_url"`     // Lazily-loaded news listing page
	BaseURL        string `toml:"base_url"`        // Prefix for relative article links
	UserAgent      string `toml:"user_agent"`      // Browser and HTTP user agent
	AcceptLanguage string `toml:"accept_language"` // Accept-Language header for listing and articles
	Headless       bool   `toml:"headless"`        // Run Chrome headless
	NoSandbox      bool   `toml:"no_sandbox"`      // Pass --no-sandbox (needed in containers)

	InitialWait    string `toml:"initial_wait"`     // Wait after the listing first loads (default: "3s")
	SettleDelay    string `toml:"settle_delay"`     // Wait after each scroll step (default: "10s")
	ScrollTimeout  string `toml:"scroll_timeout"`   // Wall-clock ceiling for the whole scroll phase (default: "10m")
	MaxScrollSteps int    `toml:"max_scroll_steps"` // Hard bound on scroll steps, 0 = unbounded (default: 200)

	RequestTimeout string  `toml:"request_timeout"` // Per-article HTTP timeout (default: "10s")
	RequestRate    float64 `toml:"request_rate"`    // Article requests per second, 0 = unlimited (default: 2)
	MaxConcurrency int     `toml:"max_concurrency"` // Concurrent article extractions (default: 4)

	Selectors SelectorConfig `toml:"selectors"`
}

// SelectorConfig holds the CSS selectors for the listing and article pages
type SelectorConfig struct {
	Item      string `toml:"item"`       // Listing item (default: "#YDC-Stream-Proxy li")
	Headline  string `toml:"headline"`   // Headline link inside an item (default: "h3 a")
	Timestamp string `toml:"timestamp"`  // Machine-readable timestamp element (default: "time[datetime]")
	TimeAttr  string `toml:"time_attr"`  // Attribute carrying the timestamp (default: "datetime")
	Content   string `toml:"content"`    // Article body container (default: "div.caas-body")
	Paragraph string `toml:"paragraph"`  // Paragraph elements inside the container (default: "p")
}

// PipelineConfig controls the hunt/analyze/narrate run
type PipelineConfig struct {
	Horizon    string `toml:"horizon"`      // Maximum article age (default: "12h")
	ResetOnRun bool   `toml:"reset_on_run"` // Clear stored articles and summaries before hunting (default: true)
	Schedule   string `toml:"schedule"`     // Cron expression for -serve mode (default: "0 7,19 * * *")
	Timezone   string `toml:"timezone"`     // Zone for artifact file names (default: "Asia/Taipei")
	ReportDir  string `toml:"report_dir"`   // Local directory for summary markdown files
	PodcastDir string `toml:"podcast_dir"`  // Local directory for narrated audio
	KeepReport bool   `toml:"keep_report"`  // Keep the local summary file after upload
}

// SummaryConfig controls prompt construction
type SummaryConfig struct {
	PromptFile  string `toml:"prompt_file"`  // Optional TOML file with a text/template "prompt" key overriding the built-in one
	HorizonText string `toml:"horizon_text"` // Phrase used in the greeting line; empty derives it from pipeline.horizon
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for summarization (default: "gemini-flash-latest")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for summarization
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the summarization provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
	MaxRetries      int         `toml:"max_retries"`      // Retries on rate limit errors (default: 3)
}

// SpeechConfig contains Google Cloud Text-to-Speech settings
type SpeechConfig struct {
	ByteLimit       int     `toml:"byte_limit"`       // Per-request text budget in UTF-8 bytes (default: 4800)
	LanguageCode    string  `toml:"language_code"`    // default: "cmn-TW"
	VoiceName       string  `toml:"voice_name"`       // default: "cmn-TW-Wavenet-A"
	SpeakingRate    float64 `toml:"speaking_rate"`    // default: 1.0
	AudioEncoding   string  `toml:"audio_encoding"`   // default: "MP3"
	CredentialsFile string  `toml:"credentials_file"` // Service account JSON file; GCP_CREDENTIALS_JSON takes priority
	CredentialsJSON string  `toml:"-"`                // Inline service account JSON, environment only
}

// S3Config contains object store settings; an empty bucket disables uploads
type S3Config struct {
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Profile      string `toml:"profile"`
	Prefix       string `toml:"prefix"`         // Prepended to every object key
	UsePathStyle bool   `toml:"use_path_style"` // Path-style addressing for S3-compatible stores
	Endpoint     string `toml:"endpoint"`       // Custom endpoint (MinIO, LocalStack)
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Type: StorageTypeSQLite,
			SQLite: SQLiteConfig{
				Path:          "./data/news.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
			},
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Crawler: CrawlerConfig{
			ListingURL:     "https://tw.stock.yahoo.com/tw-market",
			BaseURL:        "https://tw.stock.yahoo.com",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			AcceptLanguage: "zh-TW,zh;q=0.9,en;q=0.8",
			Headless:       true,
			NoSandbox:      true,
			InitialWait:    "3s",
			SettleDelay:    "10s",
			ScrollTimeout:  "10m",
			MaxScrollSteps: 200,
			RequestTimeout: "10s",
			RequestRate:    2,
			MaxConcurrency: 4,
			Selectors: SelectorConfig{
				Item:      "#YDC-Stream-Proxy li",
				Headline:  "h3 a",
				Timestamp: "time[datetime]",
				TimeAttr:  "datetime",
				Content:   "div.caas-body",
				Paragraph: "p",
			},
		},
		Pipeline: PipelineConfig{
			Horizon:    "12h",
			ResetOnRun: true,
			Schedule:   "0 7,19 * * *",
			Timezone:   "Asia/Taipei",
			ReportDir:  "./reports",
			PodcastDir: "./podcasts",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-flash-latest",
			Timeout:     "5m",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			MaxRetries:      3,
		},
		Speech: SpeechConfig{
			ByteLimit:     4800,
			LanguageCode:  "cmn-TW",
			VoiceName:     "cmn-TW-Wavenet-A",
			SpeakingRate:  1.0,
			AudioEncoding: "MP3",
		},
		S3: S3Config{
			Region: "ap-northeast-1",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env only fills variables the process does not already have
	_ = godotenv.Load()

	// {NAME} references in string values resolve against .env and the environment
	secrets := secretsFromEnvironment()
	if err := ExpandSecretRefs(config, secrets, arbor.NewLogger()); err != nil {
		return nil, fmt.Errorf("failed to expand config references: %w", err)
	}

	applyEnvOverrides(config)

	return config, nil
}

func secretsFromEnvironment() map[string]string {
	secrets := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			secrets[k] = v
		}
	}
	return secrets
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MARKETCAST_ENV"); env != "" {
		config.Environment = env
	}

	// Storage
	if storageType := os.Getenv("MARKETCAST_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = StorageType(strings.ToLower(storageType))
	}
	if sqlitePath := os.Getenv("MARKETCAST_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if badgerPath := os.Getenv("MARKETCAST_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("MARKETCAST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MARKETCAST_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Crawler
	if listingURL := os.Getenv("MARKETCAST_CRAWLER_LISTING_URL"); listingURL != "" {
		config.Crawler.ListingURL = listingURL
	}
	if baseURL := os.Getenv("MARKETCAST_CRAWLER_BASE_URL"); baseURL != "" {
		config.Crawler.BaseURL = baseURL
	}
	if userAgent := os.Getenv("MARKETCAST_CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if headless := os.Getenv("MARKETCAST_CRAWLER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Crawler.Headless = b
		}
	}
	if settle := os.Getenv("MARKETCAST_CRAWLER_SETTLE_DELAY"); settle != "" {
		config.Crawler.SettleDelay = settle
	}
	if maxConcurrency := os.Getenv("MARKETCAST_CRAWLER_MAX_CONCURRENCY"); maxConcurrency != "" {
		if n, err := strconv.Atoi(maxConcurrency); err == nil {
			config.Crawler.MaxConcurrency = n
		}
	}

	// Pipeline
	if horizon := os.Getenv("MARKETCAST_HORIZON"); horizon != "" {
		config.Pipeline.Horizon = horizon
	}
	if schedule := os.Getenv("MARKETCAST_SCHEDULE"); schedule != "" {
		config.Pipeline.Schedule = schedule
	}
	if reset := os.Getenv("MARKETCAST_RESET_ON_RUN"); reset != "" {
		if b, err := strconv.ParseBool(reset); err == nil {
			config.Pipeline.ResetOnRun = b
		}
	}

	// Gemini (legacy GOOGLE_API_KEY first, MARKETCAST_ prefix takes priority)
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("MARKETCAST_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("MARKETCAST_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// Claude
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("MARKETCAST_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("MARKETCAST_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	if provider := os.Getenv("MARKETCAST_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}

	// Speech
	if credentials := os.Getenv("GCP_CREDENTIALS_JSON"); credentials != "" {
		config.Speech.CredentialsJSON = credentials
	}
	if credentialsFile := os.Getenv("MARKETCAST_SPEECH_CREDENTIALS_FILE"); credentialsFile != "" {
		config.Speech.CredentialsFile = credentialsFile
	}
	if voice := os.Getenv("MARKETCAST_SPEECH_VOICE"); voice != "" {
		config.Speech.VoiceName = voice
	}

	// S3
	if bucket := os.Getenv("MARKETCAST_S3_BUCKET"); bucket != "" {
		config.S3.Bucket = bucket
	}
	if region := os.Getenv("MARKETCAST_S3_REGION"); region != "" {
		config.S3.Region = region
	} else if region := os.Getenv("AWS_REGION"); region != "" && config.S3.Region == "" {
		config.S3.Region = region
	}
	if profile := os.Getenv("MARKETCAST_S3_PROFILE"); profile != "" {
		config.S3.Profile = profile
	}
	if endpoint := os.Getenv("MARKETCAST_S3_ENDPOINT"); endpoint != "" {
		config.S3.Endpoint = endpoint
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, horizon string, schedule string) {
	if horizon != "" {
		config.Pipeline.Horizon = horizon
	}
	if schedule != "" {
		config.Pipeline.Schedule = schedule
	}
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if _, err := c.Pipeline.HorizonDuration(); err != nil {
		return err
	}
	if c.Speech.ByteLimit <= 0 {
		return fmt.Errorf("speech.byte_limit must be positive, got %d", c.Speech.ByteLimit)
	}
	switch c.Storage.Type {
	case StorageTypeSQLite, StorageTypeBadger:
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Storage.Type)
	}
	switch c.LLM.DefaultProvider {
	case LLMProviderGemini, LLMProviderClaude:
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.DefaultProvider)
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("invalid pipeline.timezone %q: %w", c.Pipeline.Timezone, err)
	}
	return nil
}

// HorizonDuration parses pipeline.horizon
func (p PipelineConfig) HorizonDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.Horizon)
	if err != nil {
		return 0, fmt.Errorf("invalid pipeline.horizon %q: %w", p.Horizon, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("pipeline.horizon must be positive, got %s", d)
	}
	return d, nil
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
