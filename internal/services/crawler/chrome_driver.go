package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

const (
	scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`
	scrollHeightJS   = `document.body.scrollHeight`
)

// ChromeDriverConfig holds browser settings for the listing driver
type ChromeDriverConfig struct {
	UserAgent      string
	AcceptLanguage string
	Headless       bool
	NoSandbox      bool
	StartupTimeout time.Duration // startup test and first navigation
	InitialWait    time.Duration // let the first batch of entries render
}

// ChromeListingDriver drives one headless Chrome tab through chromedp
type ChromeListingDriver struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	closeOnce       sync.Once
	logger          arbor.ILogger
}

// NewChromeDriverFactory returns a DriverFactory that starts Chrome with config
func NewChromeDriverFactory(config ChromeDriverConfig, logger arbor.ILogger) DriverFactory {
	return func(ctx context.Context, listingURL string) (ListingDriver, error) {
		return StartChromeListingDriver(ctx, listingURL, config, logger)
	}
}

// StartChromeListingDriver launches Chrome, verifies it responds and loads
// listingURL. Every failure wraps ErrDriverStart and leaves nothing running.
func StartChromeListingDriver(ctx context.Context, listingURL string, config ChromeDriverConfig, logger arbor.ILogger) (*ChromeListingDriver, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(config.UserAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	d := &ChromeListingDriver{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		logger:          logger,
	}

	startupTimeout := config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = 60 * time.Second
	}
	testCtx, testCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: browser failed startup test: %v", ErrDriverStart, err)
	}

	headers := network.Headers{}
	if config.AcceptLanguage != "" {
		headers["Accept-Language"] = config.AcceptLanguage
	}

	err := chromedp.Run(testCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(listingURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: failed to load listing %s: %v", ErrDriverStart, listingURL, err)
	}

	if config.InitialWait > 0 {
		if err := chromedp.Run(browserCtx, chromedp.Sleep(config.InitialWait)); err != nil {
			d.Close()
			return nil, fmt.Errorf("%w: %v", ErrDriverStart, err)
		}
	}

	logger.Info().
		Str("url", listingURL).
		Bool("headless", config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Listing browser started")

	return d, nil
}

// run executes actions in the tab, cancelling them when ctx ends
func (d *ChromeListingDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (d *ChromeListingDriver) Extend(ctx context.Context) error {
	var height int64
	if err := d.run(ctx, chromedp.Evaluate(scrollToBottomJS, &height)); err != nil {
		return fmt.Errorf("scroll listing: %w", err)
	}
	return nil
}

func (d *ChromeListingDriver) Height(ctx context.Context) (int64, error) {
	var height int64
	if err := d.run(ctx, chromedp.Evaluate(scrollHeightJS, &height)); err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	return height, nil
}

func (d *ChromeListingDriver) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot listing: %w", err)
	}
	return html, nil
}

// Close shuts the tab and the browser process
func (d *ChromeListingDriver) Close() error {
	d.closeOnce.Do(func() {
		d.browserCancel()
		d.allocatorCancel()
		d.logger.Debug().Msg("Listing browser closed")
	})
	return nil
}
