package models

import "time"

// TimeWindow is the acceptance window for one run: everything published at
// or after Now-Horizon is in. Now is fixed once per run and always UTC.
type TimeWindow struct {
	Now     time.Time     `json:"now"`
	Horizon time.Duration `json:"horizon"`
}

// NewTimeWindow normalizes now to UTC so comparisons never depend on the
// caller's wall-clock zone.
func NewTimeWindow(now time.Time, horizon time.Duration) TimeWindow {
	return TimeWindow{Now: now.UTC(), Horizon: horizon}
}

// Boundary returns Now-Horizon
func (w TimeWindow) Boundary() time.Time {
	return w.Now.Add(-w.Horizon)
}

// Contains reports whether t falls inside the window (boundary inclusive)
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Boundary())
}

// CandidateReference is a listing entry that has not been verified yet
type CandidateReference struct {
	Headline string `json:"headline"`
	URL      string `json:"url"`
}

// Resolve attaches the precise timestamp and body found on the article page
func (c CandidateReference) Resolve(publishedAt time.Time, content string) ResolvedArticle {
	return ResolvedArticle{
		Headline:    c.Headline,
		URL:         c.URL,
		PublishedAt: publishedAt.UTC(),
		Content:     content,
	}
}

// ResolvedArticle is an accepted article as persisted by the store.
// URL is the dedup key.
type ResolvedArticle struct {
	Headline    string    `json:"headline"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Content     string    `json:"content"`
	ScrapedAt   time.Time `json:"scraped_at"`
}
