package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/marketcast/internal/models"
	"github.com/ternarybob/marketcast/internal/services/reltime"
)

// ListingSelectors locates entries on the news listing page
type ListingSelectors struct {
	Item     string // one entry per match, e.g. "#YDC-Stream-Proxy li"
	Headline string // headline link inside the entry, e.g. "h3 a"
}

// ListingItem is one rendered listing entry
type ListingItem struct {
	Headline   string
	Href       string
	TimePhrase string // relative-time phrase, empty when none was found
}

const headingSelector = "h1, h2, h3, h4, h5, h6"

// ParseListing extracts entries from a rendered listing in document order.
// Entries without a headline link are skipped.
//
// The time phrase is taken from the div immediately preceding the heading
// that wraps the headline link: the first span there whose text carries a
// relative-time keyword. When that div is absent every span in the entry is
// considered instead.
func ParseListing(html string, sel ListingSelectors) ([]ListingItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var items []ListingItem
	doc.Find(sel.Item).Each(func(_ int, entry *goquery.Selection) {
		link := entry.Find(sel.Headline).First()
		if link.Length() == 0 {
			return
		}

		href, _ := link.Attr("href")
		items = append(items, ListingItem{
			Headline:   strings.TrimSpace(link.Text()),
			Href:       strings.TrimSpace(href),
			TimePhrase: findTimePhrase(entry, link),
		})
	})

	return items, nil
}

func findTimePhrase(entry, link *goquery.Selection) string {
	heading := link.Closest(headingSelector)
	if heading.Length() == 0 {
		heading = link.Parent()
	}

	scope := heading.PrevAllFiltered("div").First()
	if scope.Length() == 0 {
		scope = entry
	}

	phrase := ""
	scope.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := strings.TrimSpace(span.Text())
		if reltime.IsRelativePhrase(text) {
			phrase = text
			return false
		}
		return true
	})
	return phrase
}

// Candidates turns listing items into candidate references in listing order.
// Relative links resolve against baseURL; a location seen earlier in the
// listing is not repeated.
func Candidates(items []ListingItem, baseURL string) []models.CandidateReference {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" {
		base = nil
	}

	seen := make(map[string]bool, len(items))
	candidates := make([]models.CandidateReference, 0, len(items))
	for _, item := range items {
		if item.Href == "" {
			continue
		}
		location := absoluteURL(base, baseURL, item.Href)
		if seen[location] {
			continue
		}
		seen[location] = true
		candidates = append(candidates, models.CandidateReference{
			Headline: item.Headline,
			URL:      location,
		})
	}
	return candidates
}

func absoluteURL(base *url.URL, baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if base != nil {
		if ref, err := url.Parse(href); err == nil {
			return base.ResolveReference(ref).String()
		}
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/")
}
