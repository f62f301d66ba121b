// Package chunker splits narration text into sentence-aligned segments that
// fit a speech API's per-request byte budget.
package chunker

import (
	"strings"
	"unicode"

	"github.com/ternarybob/marketcast/internal/models"
)

// Terminator is the single sentence terminator every break is normalized to
const Terminator = "。"

// breakRunes always end a sentence
var breakRunes = map[rune]bool{
	'\n': true,
	'\r': true,
	'!':  true,
	'?':  true,
	'！':  true,
	'？':  true,
	'。':  true,
}

// Sentences normalizes line breaks and alternate terminators and returns the
// trimmed, non-empty sentences in order, without terminators.
//
// An ASCII '.' only ends a sentence when followed by whitespace or the end of
// the text, so decimals like "1.25%" stay intact.
func Sentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case breakRunes[r]:
			flush()
		case r == '.' && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return sentences
}

// Chunk groups sentences greedily into chunks of at most byteLimit UTF-8
// bytes, each sentence followed by Terminator. A sentence that alone exceeds
// byteLimit becomes its own chunk, marked Oversized, and is never split or
// truncated. Empty input yields an empty slice.
func Chunk(text string, byteLimit int) []models.TextChunk {
	chunks := []models.TextChunk{}
	var current strings.Builder

	emit := func(s string) {
		n := len(s)
		chunks = append(chunks, models.TextChunk{
			Index:     len(chunks),
			Text:      s,
			Bytes:     n,
			Oversized: n > byteLimit,
		})
	}

	for _, sentence := range Sentences(text) {
		next := sentence + Terminator
		if current.Len()+len(next) > byteLimit && current.Len() > 0 {
			emit(current.String())
			current.Reset()
		}
		current.WriteString(next)
		if current.Len() > byteLimit {
			// only possible when current holds this sentence alone
			emit(current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		emit(current.String())
	}

	return chunks
}

// Join concatenates chunk texts in order
func Join(chunks []models.TextChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}
