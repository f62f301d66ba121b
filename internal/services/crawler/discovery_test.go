package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const testBase = "https://tw.stock.yahoo.com"

func articleURL(i int) string {
	return fmt.Sprintf("%s/news/article-%d.html", testBase, i)
}

func newTestDiscovery(clock *countingClock, factory DriverFactory, extractor ArticleExtractor, concurrency int) *Discovery {
	logger := arbor.NewLogger()
	return NewDiscovery(
		DiscoveryConfig{
			ListingURL:  testBase + "/tw-market",
			BaseURL:     testBase,
			Horizon:     12 * time.Hour,
			Concurrency: concurrency,
			Selectors:   testSelectors,
		},
		clock,
		factory,
		NewScrollController(ScrollConfig{Selectors: testSelectors}, noSleep, logger),
		extractor,
		logger,
	)
}

func TestDiscovery_WindowBoundary(t *testing.T) {
	boundary := testNow.Add(-12 * time.Hour)
	driver := &fakeDriver{
		heights: growingHeights(0),
		pages:   []string{listingHTML(entry(1, "1小時前"), entry(2, "12小時前"), entry(3, "12小時前"))},
	}
	extractor := &fakeExtractor{results: map[string]Extraction{
		articleURL(1): found(testNow.Add(-time.Hour), "one"),
		articleURL(2): found(boundary, "exactly on the boundary"),
		articleURL(3): found(boundary.Add(-time.Nanosecond), "just outside"),
	}}
	clock := &countingClock{t: testNow}

	result, err := newTestDiscovery(clock, driver.factory(), extractor, 1).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Accepted, 2)
	assert.Equal(t, articleURL(1), result.Accepted[0].URL)
	assert.Equal(t, articleURL(2), result.Accepted[1].URL)
	assert.Equal(t, 1, result.Excluded.OutOfWindow)
	assert.Equal(t, 3, result.Candidates)
	assert.Equal(t, StopExhausted, result.Scroll.Reason)
}

func TestDiscovery_Exclusions(t *testing.T) {
	driver := &fakeDriver{
		heights: growingHeights(0),
		pages:   []string{listingHTML(entry(1, "1小時前"), entry(2, "2小時前"), entry(3, "3小時前"), entry(4, "4小時前"))},
	}
	extractor := &fakeExtractor{
		results: map[string]Extraction{
			articleURL(1): found(testNow.Add(-time.Hour), "kept"),
			articleURL(2): {Body: "no timestamp", ContentFound: true},
			articleURL(3): {PublishedAt: testNow.Add(-3 * time.Hour), TimeKnown: true, Body: ContentMissingBody},
		},
		errs: map[string]error{articleURL(4): &StatusError{URL: articleURL(4), StatusCode: 500}},
	}

	result, err := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), extractor, 2).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "kept", result.Accepted[0].Content)
	assert.Equal(t, "Headline 1", result.Accepted[0].Headline)
	assert.Equal(t, 1, result.Excluded.UnknownTime)
	assert.Equal(t, 1, result.Excluded.NoBody)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Excluded.Total())
}

func TestDiscovery_PreservesListingOrderUnderConcurrency(t *testing.T) {
	const n = 20
	entries := make([]fixtureEntry, 0, n)
	results := make(map[string]Extraction, n)
	for i := 1; i <= n; i++ {
		entries = append(entries, entry(i, "1小時前"))
		results[articleURL(i)] = found(testNow.Add(-time.Duration(i)*time.Minute), fmt.Sprintf("body %d", i))
	}
	driver := &fakeDriver{heights: growingHeights(0), pages: []string{listingHTML(entries...)}}
	extractor := &fakeExtractor{results: results}

	result, err := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), extractor, 4).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Accepted, n)
	for i, a := range result.Accepted {
		assert.Equal(t, articleURL(i+1), a.URL)
	}
	assert.Len(t, extractor.calls, n)
}

func TestDiscovery_DeduplicatesListing(t *testing.T) {
	driver := &fakeDriver{
		heights: growingHeights(0),
		pages:   []string{listingHTML(entry(1, "1小時前"), entry(1, "1小時前"))},
	}
	extractor := &fakeExtractor{results: map[string]Extraction{articleURL(1): found(testNow, "x")}}

	result, err := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), extractor, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Len(t, extractor.calls, 1)
}

func TestDiscovery_DriverStartFailure(t *testing.T) {
	factory := func(ctx context.Context, listingURL string) (ListingDriver, error) {
		return nil, fmt.Errorf("%w: chrome not found", ErrDriverStart)
	}
	extractor := &fakeExtractor{}
	d := newTestDiscovery(&countingClock{t: testNow}, factory, extractor, 1)

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDriverStart)
	assert.Empty(t, extractor.calls)
	assert.Equal(t, StateScrolling, d.State())
}

func TestDiscovery_ClosesDriverOnScrollError(t *testing.T) {
	boom := errors.New("renderer gone")
	driver := &fakeDriver{heights: growingHeights(3), pages: []string{listingHTML()}, snapshotErr: boom}

	_, err := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), &fakeExtractor{}, 1).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, driver.closed)
}

func TestDiscovery_ClosesDriverOnSuccess(t *testing.T) {
	driver := &fakeDriver{heights: growingHeights(1), pages: []string{listingHTML()}}
	d := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), &fakeExtractor{}, 1)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Equal(t, 1, driver.closed)
	assert.Equal(t, StateDone, d.State())
}

func TestDiscovery_ReadsClockOnce(t *testing.T) {
	driver := &fakeDriver{
		heights: growingHeights(3),
		pages:   []string{listingHTML(entry(1, "1小時前"), entry(2, "2小時前"))},
	}
	extractor := &fakeExtractor{results: map[string]Extraction{
		articleURL(1): found(testNow.Add(-time.Hour), "a"),
		articleURL(2): found(testNow.Add(-2*time.Hour), "b"),
	}}
	clock := &countingClock{t: testNow}

	result, err := newTestDiscovery(clock, driver.factory(), extractor, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, clock.calls)
	assert.True(t, testNow.Equal(result.Window.Now))
}

func TestDiscovery_Idempotent(t *testing.T) {
	page := listingHTML(entry(1, "1小時前"), entry(2, "昨天"))
	extractor := &fakeExtractor{results: map[string]Extraction{
		articleURL(1): found(testNow.Add(-time.Hour), "a"),
		articleURL(2): found(testNow.Add(-30*time.Hour), "b"),
	}}

	run := func() []string {
		driver := &fakeDriver{heights: growingHeights(2), pages: []string{page}}
		result, err := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), extractor, 3).Run(context.Background())
		require.NoError(t, err)
		urls := make([]string, 0, len(result.Accepted))
		for _, a := range result.Accepted {
			urls = append(urls, a.URL)
		}
		return urls
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, []string{articleURL(1)}, first)
}

func TestDiscovery_CancelledDuringExtraction(t *testing.T) {
	driver := &fakeDriver{heights: growingHeights(0), pages: []string{listingHTML(entry(1, "1小時前"), entry(2, "1小時前"))}}
	ctx, cancel := context.WithCancel(context.Background())
	extractor := &cancellingExtractor{cancel: cancel}

	_, err := newTestDiscovery(&countingClock{t: testNow}, driver.factory(), extractor, 1).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type cancellingExtractor struct {
	cancel context.CancelFunc
}

func (c *cancellingExtractor) Extract(ctx context.Context, url string) (Extraction, error) {
	c.cancel()
	return Extraction{}, ctx.Err()
}
