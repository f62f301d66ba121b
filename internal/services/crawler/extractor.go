package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// ContentMissingBody is the body reported when the content container is absent
const ContentMissingBody = "內文抓取失敗或格式不符。"

// ArticleSelectors locates the precise timestamp and the body on an article page
type ArticleSelectors struct {
	Timestamp string // e.g. "time[datetime]"
	TimeAttr  string // e.g. "datetime"
	Content   string // e.g. "div.caas-body"
	Paragraph string // e.g. "p"
}

// Extraction is what an article page yielded.
// TimeKnown is false when no zone-qualified timestamp was found.
// ContentFound is false when the container was missing; Body then holds
// ContentMissingBody.
type Extraction struct {
	PublishedAt  time.Time
	TimeKnown    bool
	Body         string
	ContentFound bool
}

// HasBody reports whether the extraction carries usable article text
func (x Extraction) HasBody() bool {
	return x.ContentFound && strings.TrimSpace(x.Body) != ""
}

// timestampLayouts only accept zone-qualified values; a naive local time
// cannot be compared safely against the run window.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
}

// ParseTimestamp parses a machine-readable publish time as a UTC instant
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ExtractFromMarkup reads the timestamp and body from a parsed page.
// Paragraphs are joined with "\n" in document order.
func ExtractFromMarkup(m Markup, sel ArticleSelectors) Extraction {
	var x Extraction

	if raw, ok := m.Attribute(sel.Timestamp, sel.TimeAttr); ok {
		x.PublishedAt, x.TimeKnown = ParseTimestamp(raw)
	}

	container, ok := m.Container(sel.Content)
	if !ok {
		x.Body = ContentMissingBody
		return x
	}
	x.ContentFound = true
	x.Body = strings.Join(container.ChildText(sel.Paragraph), "\n")

	return x
}

// Extractor fetches and parses article pages
type Extractor struct {
	fetcher   Fetcher
	selectors ArticleSelectors
	logger    arbor.ILogger
}

// NewExtractor creates an article extractor
func NewExtractor(fetcher Fetcher, selectors ArticleSelectors, logger arbor.ILogger) *Extractor {
	return &Extractor{
		fetcher:   fetcher,
		selectors: selectors,
		logger:    logger,
	}
}

// Extract fetches url and extracts its timestamp and body. Only fetch and
// parse failures are errors; a missing timestamp or container is reported
// in the Extraction.
func (e *Extractor) Extract(ctx context.Context, url string) (Extraction, error) {
	body, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return Extraction{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer body.Close()

	m, err := ParseMarkup(body)
	if err != nil {
		return Extraction{}, fmt.Errorf("parse %s: %w", url, err)
	}

	x := ExtractFromMarkup(m, e.selectors)
	if !x.TimeKnown {
		e.logger.Debug().Str("url", url).Msg("Article has no machine-readable timestamp")
	}
	if !x.ContentFound {
		e.logger.Debug().Str("url", url).Str("selector", e.selectors.Content).Msg("Article content container not found")
	}
	return x, nil
}
