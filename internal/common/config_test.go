package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, StorageTypeSQLite, config.Storage.Type)
	assert.Equal(t, "12h", config.Pipeline.Horizon)
	assert.Equal(t, 4800, config.Speech.ByteLimit)
	assert.Equal(t, "cmn-TW-Wavenet-A", config.Speech.VoiceName)
	assert.Equal(t, "#YDC-Stream-Proxy li", config.Crawler.Selectors.Item)
	assert.Equal(t, "gemini-flash-latest", config.Gemini.Model)
	assert.True(t, config.Pipeline.ResetOnRun)
	require.NoError(t, config.Validate())
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[pipeline]
horizon = "6h"
timezone = "UTC"

[speech]
byte_limit = 1000
`)
	override := writeConfigFile(t, "override.toml", `
[pipeline]
horizon = "3h"
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "3h", config.Pipeline.Horizon)
	assert.Equal(t, "UTC", config.Pipeline.Timezone)
	assert.Equal(t, 1000, config.Speech.ByteLimit)
	// untouched sections keep defaults
	assert.Equal(t, "cmn-TW", config.Speech.LanguageCode)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_InvalidTOML(t *testing.T) {
	path := writeConfigFile(t, "bad.toml", "[pipeline\nhorizon=")
	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("MARKETCAST_HORIZON", "2h")
	t.Setenv("GOOGLE_API_KEY", "legacy-key")
	t.Setenv("MARKETCAST_GEMINI_API_KEY", "new-key")
	t.Setenv("MARKETCAST_STORAGE_TYPE", "BADGER")
	t.Setenv("MARKETCAST_LOG_OUTPUT", "stdout, file ,")
	t.Setenv("GCP_CREDENTIALS_JSON", `{"type":"service_account"}`)

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "2h", config.Pipeline.Horizon)
	assert.Equal(t, "new-key", config.Gemini.APIKey)
	assert.Equal(t, StorageTypeBadger, config.Storage.Type)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, `{"type":"service_account"}`, config.Speech.CredentialsJSON)
}

func TestLoadFromFiles_ExpandsReferences(t *testing.T) {
	t.Setenv("TEST_PODCAST_BUCKET", "my-bucket")
	path := writeConfigFile(t, "refs.toml", `
[s3]
bucket = "{TEST_PODCAST_BUCKET}"
prefix = "{TEST_UNSET_PREFIX_VALUE}"
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "my-bucket", config.S3.Bucket)
	assert.Equal(t, "{TEST_UNSET_PREFIX_VALUE}", config.S3.Prefix)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, "30m", "")
	assert.Equal(t, "30m", config.Pipeline.Horizon)
	assert.Equal(t, "0 7,19 * * *", config.Pipeline.Schedule)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad horizon", func(c *Config) { c.Pipeline.Horizon = "soon" }},
		{"negative horizon", func(c *Config) { c.Pipeline.Horizon = "-1h" }},
		{"zero byte limit", func(c *Config) { c.Speech.ByteLimit = 0 }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "postgres" }},
		{"unknown provider", func(c *Config) { c.LLM.DefaultProvider = "openai" }},
		{"bad timezone", func(c *Config) { c.Pipeline.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestHorizonDuration(t *testing.T) {
	d, err := PipelineConfig{Horizon: "12h"}.HorizonDuration()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, d)
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseDurationOr("3s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("bogus", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("-2s", time.Minute))
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"0 7,19 * * *", false},
		{"*/15 * * * *", false},
		{"* * * * *", true},
		{"*/2 * * * *", true},
		{"not a cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFiles_SampleDeployment(t *testing.T) {
	config, err := LoadFromFiles("../../deployments/local/marketcast.toml")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, StorageTypeSQLite, config.Storage.Type)
	assert.Equal(t, "0 7,19 * * *", config.Pipeline.Schedule)
	assert.Equal(t, "Asia/Taipei", config.Pipeline.Timezone)
	assert.NoError(t, ValidateSchedule(config.Pipeline.Schedule))
}
