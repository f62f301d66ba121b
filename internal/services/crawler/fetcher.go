package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds one article request
	DefaultRequestTimeout = 10 * time.Second

	// DefaultMaxBodySize caps how much of an article page is read
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Fetcher retrieves the raw representation of an article. It does not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// StatusError reports a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTPFetcher fetches pages over HTTP with a shared request rate limit
type HTTPFetcher struct {
	httpClient     *http.Client
	userAgent      string
	acceptLanguage string
	maxBodySize    int64
	limiter        *rate.Limiter
	logger         arbor.ILogger
}

// FetcherOption configures the HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = userAgent
	}
}

// WithAcceptLanguage sets the Accept-Language header.
func WithAcceptLanguage(acceptLanguage string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.acceptLanguage = acceptLanguage
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(timeout time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if timeout > 0 {
			f.httpClient.Timeout = timeout
		}
	}
}

// WithRequestRate limits requests per second; zero or less disables limiting.
func WithRequestRate(perSecond float64) FetcherOption {
	return func(f *HTTPFetcher) {
		if perSecond <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHTTPFetcher creates a fetcher. Options apply in order, so pass
// WithHTTPClient before WithRequestTimeout.
func NewHTTPFetcher(logger arbor.ILogger, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient:  &http.Client{Timeout: DefaultRequestTimeout},
		maxBodySize: DefaultMaxBodySize,
		limiter:     rate.NewLimiter(rate.Limit(2), 2),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET and returns the body. The caller must close it.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.acceptLanguage != "" {
		req.Header.Set("Accept-Language", f.acceptLanguage)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	f.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched article page")

	return limitedBody{Reader: io.LimitReader(resp.Body, f.maxBodySize), Closer: resp.Body}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
