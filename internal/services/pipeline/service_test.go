package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/services/crawler"
	"github.com/ternarybob/marketcast/internal/services/podcast"
	"github.com/ternarybob/marketcast/internal/storage/sqlite"
)

// 07:30 in Asia/Taipei
var testNow = time.Date(2025, 10, 16, 23, 30, 0, 0, time.UTC)

type fakeHunter struct {
	result *crawler.DiscoveryResult
	err    error
	calls  int
}

func (f *fakeHunter) Run(ctx context.Context) (*crawler.DiscoveryResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSummarizer struct {
	err   error
	calls int
	seen  []*models.ResolvedArticle
}

func (f *fakeSummarizer) Summarize(ctx context.Context, articles []*models.ResolvedArticle) (*models.Summary, error) {
	f.calls++
	f.seen = articles
	if f.err != nil {
		return nil, f.err
	}
	return &models.Summary{
		ID:                 "sum_test",
		Text:               "# 摘要\n大家好。",
		SourceArticleCount: len(articles),
		CreatedAt:          testNow,
	}, nil
}

type fakeNarrator struct {
	err      error
	markdown string
	path     string
}

func (f *fakeNarrator) Build(ctx context.Context, markdown, path string) (*podcast.BuildResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.markdown = markdown
	f.path = path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte("ID3"), 0644); err != nil {
		return nil, err
	}
	return &podcast.BuildResult{Path: path, Chunks: 2, AudioBytes: 3}, nil
}

type fakeStore struct {
	err     error
	uploads map[string]string // key -> local path
}

func (f *fakeStore) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.uploads[key] = localPath
	return key, nil
}

type fixture struct {
	storage    interfaces.StorageManager
	hunter     *fakeHunter
	summarizer *fakeSummarizer
	narrator   *fakeNarrator
	store      *fakeStore
	config     Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage, err := sqlite.NewManager(arbor.NewLogger(), &common.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	config, err := NewConfig(common.PipelineConfig{
		Timezone:   "Asia/Taipei",
		ReportDir:  filepath.Join(t.TempDir(), "reports"),
		PodcastDir: filepath.Join(t.TempDir(), "podcasts"),
		ResetOnRun: true,
	})
	require.NoError(t, err)

	return &fixture{
		storage:    storage,
		hunter:     &fakeHunter{result: discovered("a", "b", "c")},
		summarizer: &fakeSummarizer{},
		narrator:   &fakeNarrator{},
		store:      &fakeStore{uploads: map[string]string{}},
		config:     config,
	}
}

func (f *fixture) service(withStore bool) *Service {
	var store interfaces.ObjectStore
	if withStore {
		store = f.store
	}
	return NewService(f.config, f.storage, f.hunter, f.summarizer, f.narrator, store, common.FixedClock{T: testNow}, arbor.NewLogger())
}

func discovered(urls ...string) *crawler.DiscoveryResult {
	result := &crawler.DiscoveryResult{
		Window:     models.NewTimeWindow(testNow, 12*time.Hour),
		Scroll:     crawler.ScrollResult{Reason: crawler.StopHorizonSatisfied, Steps: 4},
		Candidates: len(urls) + 2,
		Failed:     1,
		Excluded:   crawler.Exclusion{OutOfWindow: 1},
	}
	for i, u := range urls {
		result.Accepted = append(result.Accepted, models.ResolvedArticle{
			Headline:    "標題 " + u,
			URL:         "https://tw.stock.yahoo.com/news/" + u + ".html",
			PublishedAt: testNow.Add(-time.Duration(i+1) * time.Hour),
			Content:     "內文 " + u,
		})
	}
	return result
}

func TestHunt_StoresAcceptedArticles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.service(true).Hunt(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Accepted)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 0, report.Duplicates)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Excluded)
	assert.Equal(t, string(crawler.StopHorizonSatisfied), report.StopReason)
	assert.Equal(t, 4, report.ScrollSteps)

	count, err := f.storage.ArticleStorage().CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestHunt_ResetOnRun(t *testing.T) {
	ctx := context.Background()

	t.Run("reset clears previous run", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service(true).Hunt(ctx)
		require.NoError(t, err)
		require.NoError(t, f.storage.SummaryStorage().AddSummary(ctx, &models.Summary{ID: "old", Text: "old"}))

		f.hunter.result = discovered("a", "z")
		report, err := f.service(true).Hunt(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Inserted)
		assert.Equal(t, 0, report.Duplicates)

		count, err := f.storage.ArticleStorage().CountArticles(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		_, err = f.storage.SummaryStorage().GetLatestSummary(ctx)
		assert.ErrorIs(t, err, interfaces.ErrSummaryNotFound)
	})

	t.Run("without reset duplicates are ignored", func(t *testing.T) {
		f := newFixture(t)
		f.config.ResetOnRun = false
		_, err := f.service(true).Hunt(ctx)
		require.NoError(t, err)

		f.hunter.result = discovered("a", "z")
		report, err := f.service(true).Hunt(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Inserted)
		assert.Equal(t, 1, report.Duplicates)

		count, err := f.storage.ArticleStorage().CountArticles(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})
}

func TestHunt_DiscoveryError(t *testing.T) {
	f := newFixture(t)
	f.hunter.result = nil
	f.hunter.err = crawler.ErrDriverStart

	_, err := f.service(true).Hunt(context.Background())
	assert.ErrorIs(t, err, crawler.ErrDriverStart)
}

func TestAnalyze_NoArticles(t *testing.T) {
	f := newFixture(t)

	_, err := f.service(true).Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoArticles)
	assert.Equal(t, 0, f.summarizer.calls)
}

func TestAnalyze_WritesAndUploadsReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(true)
	_, err := svc.Hunt(ctx)
	require.NoError(t, err)

	report, err := svc.Analyze(ctx)
	require.NoError(t, err)

	assert.Equal(t, "sum_test", report.SummaryID)
	assert.Equal(t, 3, report.Articles)
	assert.Equal(t, "reports/summary_20251017_07.md", report.UploadedKey)
	assert.Empty(t, report.ReportFile, "local report is removed after upload")

	local := filepath.Join(f.config.ReportDir, "summary_20251017_07.md")
	assert.Equal(t, local, f.store.uploads["reports/summary_20251017_07.md"])
	assert.NoFileExists(t, local)

	// newest first
	require.Len(t, f.summarizer.seen, 3)
	assert.Equal(t, "標題 a", f.summarizer.seen[0].Headline)
	assert.Equal(t, "標題 c", f.summarizer.seen[2].Headline)

	latest, err := f.storage.SummaryStorage().GetLatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sum_test", latest.ID)
	assert.Equal(t, 3, latest.SourceArticleCount)
}

func TestAnalyze_LocalReportKept(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		keep      bool
		withStore bool
		uploadErr error
	}{
		{name: "keep_report", keep: true, withStore: true},
		{name: "upload failure", withStore: true, uploadErr: errors.New("access denied")},
		{name: "no object store", withStore: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.config.KeepReport = tc.keep
			f.store.err = tc.uploadErr
			svc := f.service(tc.withStore)
			_, err := svc.Hunt(ctx)
			require.NoError(t, err)

			report, err := svc.Analyze(ctx)
			require.NoError(t, err)

			local := filepath.Join(f.config.ReportDir, "summary_20251017_07.md")
			assert.Equal(t, local, report.ReportFile)
			data, err := os.ReadFile(local)
			require.NoError(t, err)
			assert.Equal(t, "# 摘要\n大家好。", string(data))
		})
	}
}

func TestAnalyze_SummarizerFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(true)
	_, err := svc.Hunt(ctx)
	require.NoError(t, err)

	boom := errors.New("quota exhausted")
	f.summarizer.err = boom

	_, err = svc.Analyze(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = f.storage.SummaryStorage().GetLatestSummary(ctx)
	assert.ErrorIs(t, err, interfaces.ErrSummaryNotFound)
	assert.NoDirExists(t, f.config.ReportDir)
}

func TestNarrate(t *testing.T) {
	ctx := context.Background()

	t.Run("no summary", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service(true).Narrate(ctx)
		assert.ErrorIs(t, err, interfaces.ErrSummaryNotFound)
	})

	t.Run("latest summary narrated and uploaded", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.storage.SummaryStorage().AddSummary(ctx, &models.Summary{
			ID: "older", Text: "舊的", CreatedAt: testNow.Add(-time.Hour),
		}))
		require.NoError(t, f.storage.SummaryStorage().AddSummary(ctx, &models.Summary{
			ID: "newest", Text: "新的報告", CreatedAt: testNow,
		}))

		report, err := f.service(true).Narrate(ctx)
		require.NoError(t, err)

		assert.Equal(t, "新的報告", f.narrator.markdown)
		assert.Equal(t, filepath.Join(f.config.PodcastDir, "podcast_20251017_07.mp3"), f.narrator.path)
		assert.Equal(t, "newest", report.SummaryID)
		assert.Equal(t, 2, report.Chunks)
		assert.Equal(t, 3, report.AudioBytes)
		assert.Equal(t, "podcasts/podcast_20251017_07.mp3", report.UploadedKey)
		assert.FileExists(t, report.AudioFile)
	})

	t.Run("synthesis failure", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.storage.SummaryStorage().AddSummary(ctx, &models.Summary{ID: "s", Text: "x"}))
		f.narrator.err = errors.New("tts unavailable")

		_, err := f.service(true).Narrate(ctx)
		assert.Error(t, err)
		assert.Empty(t, f.store.uploads)
	})
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()

	t.Run("all stages", func(t *testing.T) {
		f := newFixture(t)
		report, err := f.service(true).RunAll(ctx)
		require.NoError(t, err)

		assert.NotEmpty(t, report.RunID)
		assert.Equal(t, testNow, report.StartedAt)
		require.NotNil(t, report.Hunt)
		require.NotNil(t, report.Analyze)
		require.NotNil(t, report.Narrate)
		assert.Equal(t, 3, report.Hunt.Inserted)
		assert.Equal(t, report.Analyze.SummaryID, report.Narrate.SummaryID)
		assert.Len(t, f.store.uploads, 2)
	})

	t.Run("stops at first failing stage", func(t *testing.T) {
		f := newFixture(t)
		f.hunter.result = discovered()

		report, err := f.service(true).RunAll(ctx)
		assert.ErrorIs(t, err, ErrNoArticles)
		assert.NotNil(t, report.Hunt)
		assert.Nil(t, report.Analyze)
		assert.Nil(t, report.Narrate)
		assert.Empty(t, f.narrator.path)
	})
}

func TestRunStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(false)

	report, err := svc.RunStage(ctx, models.StageHunt)
	require.NoError(t, err)
	assert.NotNil(t, report.Hunt)
	assert.Nil(t, report.Analyze)
	assert.Equal(t, 1, f.hunter.calls)

	_, err = svc.RunStage(ctx, models.Stage("publish"))
	assert.Error(t, err)
}

func TestNewConfig_InvalidTimezone(t *testing.T) {
	_, err := NewConfig(common.PipelineConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}
