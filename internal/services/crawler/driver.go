package crawler

import (
	"context"
	"errors"
)

// ErrDriverStart means the rendering driver could not be started or could not
// load the listing. It is fatal for the hunt stage.
var ErrDriverStart = errors.New("rendering driver failed to start")

// ListingDriver renders a lazily-loaded listing and grows it on demand.
// Close must be safe to call more than once.
type ListingDriver interface {
	// Extend asks the page to load more entries (scroll to the bottom)
	Extend(ctx context.Context) error

	// Height reports the rendered content size; growth means new entries
	Height(ctx context.Context) (int64, error)

	// Snapshot returns the full rendered markup
	Snapshot(ctx context.Context) (string, error)

	Close() error
}

// DriverFactory starts a driver with listingURL loaded
type DriverFactory func(ctx context.Context, listingURL string) (ListingDriver, error)
