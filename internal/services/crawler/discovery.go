package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/common"
	"github.com/ternarybob/marketcast/internal/models"
)

// DiscoveryState is the orchestrator's position in Init -> Scrolling -> Extracting -> Done
type DiscoveryState string

const (
	StateInit       DiscoveryState = "init"
	StateScrolling  DiscoveryState = "scrolling"
	StateExtracting DiscoveryState = "extracting"
	StateDone       DiscoveryState = "done"
)

// ArticleExtractor resolves a candidate's precise timestamp and body
type ArticleExtractor interface {
	Extract(ctx context.Context, url string) (Extraction, error)
}

// DiscoveryConfig configures one discovery run
type DiscoveryConfig struct {
	ListingURL  string
	BaseURL     string
	Horizon     time.Duration
	Concurrency int // parallel extractions, <= 1 is sequential
	Selectors   ListingSelectors
}

// Exclusion counts candidates rejected by the precise filter
type Exclusion struct {
	UnknownTime int
	OutOfWindow int
	NoBody      int
}

// Total returns the number of excluded candidates
func (e Exclusion) Total() int {
	return e.UnknownTime + e.OutOfWindow + e.NoBody
}

// DiscoveryResult is the outcome of a discovery run
type DiscoveryResult struct {
	Window     models.TimeWindow
	Scroll     ScrollResult
	Candidates int
	Accepted   []models.ResolvedArticle // listing order
	Failed     int                      // fetch or parse errors
	Excluded   Exclusion
}

// Discovery drives the listing, snapshots it once and filters candidates by
// their precise timestamps
type Discovery struct {
	config    DiscoveryConfig
	clock     common.Clock
	newDriver DriverFactory
	scroller  *ScrollController
	extractor ArticleExtractor
	logger    arbor.ILogger

	mu    sync.Mutex
	state DiscoveryState
}

// NewDiscovery creates a discovery orchestrator
func NewDiscovery(config DiscoveryConfig, clock common.Clock, newDriver DriverFactory, scroller *ScrollController, extractor ArticleExtractor, logger arbor.ILogger) *Discovery {
	return &Discovery{
		config:    config,
		clock:     clock,
		newDriver: newDriver,
		scroller:  scroller,
		extractor: extractor,
		logger:    logger,
		state:     StateInit,
	}
}

// State returns the current state
func (d *Discovery) State() DiscoveryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Discovery) setState(s DiscoveryState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.logger.Debug().Str("state", string(s)).Msg("Discovery state")
}

// Run performs one discovery pass. The reference instant is read from the
// clock exactly once and every later comparison uses that window.
func (d *Discovery) Run(ctx context.Context) (*DiscoveryResult, error) {
	d.setState(StateInit)
	window := models.NewTimeWindow(d.clock.Now(), d.config.Horizon)

	d.logger.Info().
		Str("now", window.Now.Format(time.RFC3339)).
		Str("boundary", window.Boundary().Format(time.RFC3339)).
		Str("listing", d.config.ListingURL).
		Msg("Starting discovery")

	html, scroll, err := d.scrollListing(ctx, window)
	if err != nil {
		return nil, err
	}

	d.setState(StateExtracting)
	items, err := ParseListing(html, d.config.Selectors)
	if err != nil {
		return nil, err
	}
	candidates := Candidates(items, d.config.BaseURL)

	d.logger.Info().
		Str("stop_reason", string(scroll.Reason)).
		Int("scroll_steps", scroll.Steps).
		Int("items", len(items)).
		Int("candidates", len(candidates)).
		Msg("Listing captured, extracting articles")

	result, err := d.extractAll(ctx, candidates, window)
	if err != nil {
		return nil, err
	}
	result.Scroll = scroll

	d.setState(StateDone)
	d.logger.Info().
		Int("candidates", result.Candidates).
		Int("accepted", len(result.Accepted)).
		Int("failed", result.Failed).
		Int("excluded", result.Excluded.Total()).
		Msg("Discovery complete")

	return result, nil
}

// scrollListing owns the driver: it is closed on every path out of here
func (d *Discovery) scrollListing(ctx context.Context, window models.TimeWindow) (string, ScrollResult, error) {
	d.setState(StateScrolling)

	driver, err := d.newDriver(ctx, d.config.ListingURL)
	if err != nil {
		return "", ScrollResult{}, fmt.Errorf("start listing driver: %w", err)
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil {
			d.logger.Warn().Err(cerr).Msg("Failed to close listing driver")
		}
	}()

	scroll, err := d.scroller.Run(ctx, driver, window)
	if err != nil {
		return "", scroll, fmt.Errorf("scroll listing: %w", err)
	}

	html, err := driver.Snapshot(ctx)
	if err != nil {
		return "", scroll, fmt.Errorf("snapshot listing: %w", err)
	}
	return html, scroll, nil
}

type extractOutcome struct {
	extraction Extraction
	err        error
}

func (d *Discovery) extractAll(ctx context.Context, candidates []models.CandidateReference, window models.TimeWindow) (*DiscoveryResult, error) {
	outcomes := make([]extractOutcome, len(candidates))

	workers := d.config.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				x, err := d.extractor.Extract(ctx, candidates[i].URL)
				outcomes[i] = extractOutcome{extraction: x, err: err}
			}
		}()
	}

feed:
	for i := range candidates {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}

	result := &DiscoveryResult{Window: window, Candidates: len(candidates)}
	for i, c := range candidates {
		out := outcomes[i]
		switch {
		case out.err != nil:
			result.Failed++
			d.logger.Warn().Err(out.err).Str("url", c.URL).Msg("Article extraction failed, skipping")
		case !out.extraction.TimeKnown:
			result.Excluded.UnknownTime++
			d.logger.Debug().Str("url", c.URL).Msg("Excluded: unknown publish time")
		case !window.Contains(out.extraction.PublishedAt):
			result.Excluded.OutOfWindow++
			d.logger.Debug().
				Str("url", c.URL).
				Str("published_at", out.extraction.PublishedAt.Format(time.RFC3339)).
				Msg("Excluded: outside time window")
		case !out.extraction.HasBody():
			result.Excluded.NoBody++
			d.logger.Debug().Str("url", c.URL).Msg("Excluded: no article body")
		default:
			result.Accepted = append(result.Accepted, c.Resolve(out.extraction.PublishedAt, out.extraction.Body))
			d.logger.Info().
				Str("published_at", out.extraction.PublishedAt.Format("2006-01-02 15:04")).
				Str("headline", c.Headline).
				Msg("Article accepted")
		}
	}

	return result, nil
}
