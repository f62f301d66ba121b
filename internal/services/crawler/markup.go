package crawler

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Markup is the read-only view of a parsed page the extractor needs.
// Tests can implement it directly instead of parsing HTML.
type Markup interface {
	// Attribute returns attr of the first element matching selector
	Attribute(selector, attr string) (string, bool)

	// Container returns the first element matching selector
	Container(selector string) (Markup, bool)

	// ChildText returns the text of every descendant matching selector, in document order
	ChildText(selector string) []string
}

// GoqueryMarkup implements Markup over a goquery selection
type GoqueryMarkup struct {
	sel *goquery.Selection
}

// ParseMarkup parses an HTML document
func ParseMarkup(r io.Reader) (*GoqueryMarkup, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &GoqueryMarkup{sel: doc.Selection}, nil
}

// ParseMarkupString parses an HTML string
func ParseMarkupString(html string) (*GoqueryMarkup, error) {
	return ParseMarkup(strings.NewReader(html))
}

func (m *GoqueryMarkup) Attribute(selector, attr string) (string, bool) {
	return m.sel.Find(selector).First().Attr(attr)
}

func (m *GoqueryMarkup) Container(selector string) (Markup, bool) {
	found := m.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false
	}
	return &GoqueryMarkup{sel: found}, true
}

func (m *GoqueryMarkup) ChildText(selector string) []string {
	var texts []string
	m.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})
	return texts
}
