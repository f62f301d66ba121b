package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/marketcast/internal/models"
)

type fixtureEntry struct {
	source string
	phrase string
	href   string
	title  string
}

// listingHTML renders entries the way the live listing nests them
func listingHTML(entries ...fixtureEntry) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="YDC-Stream-Proxy"><ul>`)
	for _, e := range entries {
		b.WriteString(`<li class="js-stream-content"><div class="Cf">`)
		b.WriteString(`<div class="meta"><span>` + e.source + `</span><span>` + e.phrase + `</span></div>`)
		b.WriteString(`<h3><a href="` + e.href + `">` + e.title + `</a></h3>`)
		b.WriteString(`<p>teaser</p></div></li>`)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func entry(i int, phrase string) fixtureEntry {
	return fixtureEntry{
		source: "鉅亨網",
		phrase: phrase,
		href:   fmt.Sprintf("/news/article-%d.html", i),
		title:  fmt.Sprintf("Headline %d", i),
	}
}

var testSelectors = ListingSelectors{Item: "#YDC-Stream-Proxy li", Headline: "h3 a"}

// fakeDriver serves pages[k] and heights[k] after k extensions; the last
// element repeats once the slices run out
type fakeDriver struct {
	mu         sync.Mutex
	heights    []int64
	pages      []string
	extensions int
	closed     int

	extendErr   error
	heightErr   error
	snapshotErr error
}

func (f *fakeDriver) idx(n int) int {
	if f.extensions < n {
		return f.extensions
	}
	return n - 1
}

func (f *fakeDriver) Extend(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extendErr != nil {
		return f.extendErr
	}
	f.extensions++
	return ctx.Err()
}

func (f *fakeDriver) Height(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heightErr != nil {
		return 0, f.heightErr
	}
	return f.heights[f.idx(len(f.heights))], nil
}

func (f *fakeDriver) Snapshot(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return "", f.snapshotErr
	}
	return f.pages[f.idx(len(f.pages))], nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeDriver) factory() DriverFactory {
	return func(ctx context.Context, listingURL string) (ListingDriver, error) {
		return f, nil
	}
}

// growingHeights returns n+1 strictly growing heights then a repeat
func growingHeights(n int) []int64 {
	h := make([]int64, 0, n+2)
	for i := 0; i <= n; i++ {
		h = append(h, int64(1000*(i+1)))
	}
	return append(h, h[len(h)-1])
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// fakeExtractor returns canned extractions keyed by URL
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]Extraction
	errs    map[string]error
	calls   []string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return Extraction{}, err
	}
	if x, ok := f.results[url]; ok {
		return x, nil
	}
	return Extraction{}, errors.New("no fixture for " + url)
}

func found(t time.Time, body string) Extraction {
	return Extraction{PublishedAt: t, TimeKnown: true, Body: body, ContentFound: true}
}

// countingClock counts Now calls
type countingClock struct {
	t     time.Time
	calls int
}

func (c *countingClock) Now() time.Time {
	c.calls++
	return c.t
}

var testNow = time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)

func testWindow(h time.Duration) models.TimeWindow {
	return models.NewTimeWindow(testNow, h)
}
