package podcast

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText turns a markdown report into narration text. Headings,
// paragraphs, list items and table rows each become one line; emphasis
// markers, heading hashes, list bullets and thematic breaks disappear.
// Fenced code and raw HTML are not read aloud.
func PlainText(markdown string) string {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	)

	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	r := &narrationRenderer{source: source}
	_ = ast.Walk(doc, r.walk)
	return r.String()
}

type narrationRenderer struct {
	source []byte
	b      strings.Builder
	cells  int
}

func (r *narrationRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock, ast.KindListItem:
		if !entering {
			r.newline()
		}
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.b.Write(t.Segment.Value(r.source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				r.newline()
			}
		}
	case ast.KindString:
		if entering {
			r.b.Write(n.(*ast.String).Value)
		}
	case ast.KindAutoLink:
		if entering {
			r.b.Write(n.(*ast.AutoLink).Label(r.source))
		}
		return ast.WalkSkipChildren, nil
	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindRawHTML, ast.KindThematicBreak, ast.KindImage:
		return ast.WalkSkipChildren, nil
	case extast.KindTableRow, extast.KindTableHeader:
		if entering {
			r.cells = 0
		} else {
			r.newline()
		}
	case extast.KindTableCell:
		if entering && r.cells > 0 {
			r.b.WriteString("，")
		}
		if entering {
			r.cells++
		}
	}
	return ast.WalkContinue, nil
}

func (r *narrationRenderer) newline() {
	r.b.WriteByte('\n')
}

// String returns the collected lines, trimmed, without blank lines
func (r *narrationRenderer) String() string {
	lines := strings.Split(r.b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
