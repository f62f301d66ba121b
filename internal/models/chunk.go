package models

// TextChunk is one sentence-aligned segment of narration text.
// Bytes is the UTF-8 length of Text. Oversized marks a single sentence
// that alone exceeds the byte budget and was passed through whole.
type TextChunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Bytes     int    `json:"bytes"`
	Oversized bool   `json:"oversized"`
}
