package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/services/reltime"
)

// StopReason records why scrolling ended. None of them is an error.
type StopReason string

const (
	StopExhausted        StopReason = "exhausted"         // height stopped growing
	StopHorizonSatisfied StopReason = "horizon_satisfied" // oldest visible entry is beyond the window
	StopMaxSteps         StopReason = "max_steps"
	StopTimeout          StopReason = "timeout"
)

// ScrollConfig bounds the scroll phase
type ScrollConfig struct {
	SettleDelay time.Duration // wait after each extension
	MaxSteps    int           // 0 = unbounded
	Timeout     time.Duration // wall-clock ceiling, 0 = none
	Selectors   ListingSelectors
}

// Sleeper waits for d or until ctx ends
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ScrollResult summarizes a scroll run
type ScrollResult struct {
	Reason      StopReason
	Steps       int
	Height      int64
	Oldest      time.Time // oldest resolved phrase seen in the last pass
	OldestKnown bool
}

// ScrollController extends a listing until it has revealed the whole window
type ScrollController struct {
	config ScrollConfig
	sleep  Sleeper
	logger arbor.ILogger
}

// NewScrollController creates a controller; a nil sleeper uses ContextSleep
func NewScrollController(config ScrollConfig, sleep Sleeper, logger arbor.ILogger) *ScrollController {
	if sleep == nil {
		sleep = ContextSleep
	}
	return &ScrollController{config: config, sleep: sleep, logger: logger}
}

// Run drives the listing until the height stops growing or the oldest
// resolvable entry in the rendered batch is older than the window boundary.
// Each pass scans every rendered entry and uses the oldest time found, so an
// out-of-order entry near the bottom cannot stop the scroll early.
// Entries whose phrase does not resolve are ignored for this decision only.
func (c *ScrollController) Run(ctx context.Context, driver ListingDriver, window models.TimeWindow) (ScrollResult, error) {
	scrollCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		scrollCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	result, err := c.scroll(scrollCtx, driver, window)
	if err != nil && errors.Is(scrollCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		c.logger.Warn().
			Dur("timeout", c.config.Timeout).
			Int("steps", result.Steps).
			Msg("Scroll timeout reached, continuing with rendered listing")
		result.Reason = StopTimeout
		return result, nil
	}
	return result, err
}

func (c *ScrollController) scroll(ctx context.Context, driver ListingDriver, window models.TimeWindow) (ScrollResult, error) {
	var result ScrollResult
	boundary := window.Boundary()

	last, err := driver.Height(ctx)
	if err != nil {
		return result, err
	}
	result.Height = last

	for step := 1; ; step++ {
		if c.config.MaxSteps > 0 && step > c.config.MaxSteps {
			result.Reason = StopMaxSteps
			return result, nil
		}
		result.Steps = step

		if err := driver.Extend(ctx); err != nil {
			return result, err
		}
		if err := c.sleep(ctx, c.config.SettleDelay); err != nil {
			return result, err
		}

		height, err := driver.Height(ctx)
		if err != nil {
			return result, err
		}
		if height == last {
			result.Reason = StopExhausted
			c.logger.Debug().Int("step", step).Int64("height", height).Msg("Listing exhausted")
			return result, nil
		}
		last = height
		result.Height = height

		html, err := driver.Snapshot(ctx)
		if err != nil {
			return result, err
		}
		items, err := ParseListing(html, c.config.Selectors)
		if err != nil {
			return result, err
		}

		oldest, ok := OldestResolved(items, window.Now)
		result.Oldest, result.OldestKnown = oldest, ok

		event := c.logger.Debug().Int("step", step).Int64("height", height).Int("items", len(items))
		if ok {
			event = event.Str("oldest", oldest.Format(time.RFC3339))
		}
		event.Msg("Listing extended")

		if ok && oldest.Before(boundary) {
			result.Reason = StopHorizonSatisfied
			return result, nil
		}
	}
}

// OldestResolved returns the earliest instant among the entries' resolvable
// time phrases.
func OldestResolved(items []ListingItem, now time.Time) (time.Time, bool) {
	var oldest time.Time
	found := false
	for i := len(items) - 1; i >= 0; i-- {
		t, ok := reltime.Resolve(items[i].TimePhrase, now)
		if !ok {
			continue
		}
		if !found || t.Before(oldest) {
			oldest, found = t, true
		}
	}
	return oldest, found
}

// String implements fmt.Stringer for log fields
func (r ScrollResult) String() string {
	return fmt.Sprintf("%s after %d steps", r.Reason, r.Steps)
}
