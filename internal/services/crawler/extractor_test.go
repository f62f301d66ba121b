package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

var testArticleSelectors = ArticleSelectors{
	Timestamp: "time[datetime]",
	TimeAttr:  "datetime",
	Content:   "div.caas-body",
	Paragraph: "p",
}

const articlePage = `<html><body>
<header><time datetime="2025-10-16T03:15:00.000Z">2025年10月16日 週四 上午11:15</time></header>
<div class="caas-body"><p>台股今日開高。</p><p>外資買超。</p></div>
</body></html>`

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"utc z", "2025-10-16T03:15:00Z", time.Date(2025, 10, 16, 3, 15, 0, 0, time.UTC), true},
		{"fractional", "2025-10-16T03:15:00.000Z", time.Date(2025, 10, 16, 3, 15, 0, 0, time.UTC), true},
		{"offset", "2025-10-16T11:15:00+08:00", time.Date(2025, 10, 16, 3, 15, 0, 0, time.UTC), true},
		{"compact offset", "2025-10-16T11:15:00+0800", time.Date(2025, 10, 16, 3, 15, 0, 0, time.UTC), true},
		{"naive", "2025-10-16T11:15:00", time.Time{}, false},
		{"empty", "  ", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestExtractFromMarkup(t *testing.T) {
	m, err := ParseMarkupString(articlePage)
	require.NoError(t, err)

	x := ExtractFromMarkup(m, testArticleSelectors)
	assert.True(t, x.TimeKnown)
	assert.True(t, time.Date(2025, 10, 16, 3, 15, 0, 0, time.UTC).Equal(x.PublishedAt))
	assert.True(t, x.ContentFound)
	assert.Equal(t, "台股今日開高。\n外資買超。", x.Body)
	assert.True(t, x.HasBody())
}

func TestExtractFromMarkup_MissingContainer(t *testing.T) {
	m, err := ParseMarkupString(`<html><body><time datetime="2025-10-16T03:15:00Z"></time></body></html>`)
	require.NoError(t, err)

	x := ExtractFromMarkup(m, testArticleSelectors)
	assert.True(t, x.TimeKnown)
	assert.False(t, x.ContentFound)
	assert.Equal(t, ContentMissingBody, x.Body)
	assert.False(t, x.HasBody())
}

func TestExtractFromMarkup_EmptyContainer(t *testing.T) {
	m, err := ParseMarkupString(`<div class="caas-body"><div>ad</div></div>`)
	require.NoError(t, err)

	x := ExtractFromMarkup(m, testArticleSelectors)
	assert.False(t, x.TimeKnown)
	assert.True(t, x.ContentFound)
	assert.False(t, x.HasBody())
}

// stubMarkup exercises ExtractFromMarkup without HTML
type stubMarkup struct {
	attrs     map[string]string
	container *stubMarkup
	texts     []string
}

func (s *stubMarkup) Attribute(selector, attr string) (string, bool) {
	v, ok := s.attrs[selector+"@"+attr]
	return v, ok
}

func (s *stubMarkup) Container(string) (Markup, bool) {
	if s.container == nil {
		return nil, false
	}
	return s.container, true
}

func (s *stubMarkup) ChildText(string) []string { return s.texts }

func TestExtractFromMarkup_Stub(t *testing.T) {
	m := &stubMarkup{
		attrs:     map[string]string{"time[datetime]@datetime": "2025-10-16T11:15:00+08:00"},
		container: &stubMarkup{texts: []string{"one", "two", "three"}},
	}

	x := ExtractFromMarkup(m, testArticleSelectors)
	assert.True(t, x.TimeKnown)
	assert.Equal(t, "one\ntwo\nthree", x.Body)
}

func TestExtractor_HTTP(t *testing.T) {
	var gotAgent, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		gotAgent = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer server.Close()

	logger := arbor.NewLogger()
	fetcher := NewHTTPFetcher(logger,
		WithHTTPClient(server.Client()),
		WithUserAgent("marketcast-test"),
		WithAcceptLanguage("zh-TW"),
		WithRequestTimeout(5*time.Second),
		WithRequestRate(0),
	)
	extractor := NewExtractor(fetcher, testArticleSelectors, logger)

	x, err := extractor.Extract(context.Background(), server.URL+"/news/a.html")
	require.NoError(t, err)
	assert.Equal(t, "marketcast-test", gotAgent)
	assert.Equal(t, "zh-TW", gotLang)
	assert.True(t, x.HasBody())
	assert.True(t, x.TimeKnown)

	_, err = extractor.Extract(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHTTPFetcher_CancelledContext(t *testing.T) {
	fetcher := NewHTTPFetcher(arbor.NewLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, "http://127.0.0.1:1/")
	assert.Error(t, err)
}
