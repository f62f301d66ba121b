package models

import "time"

// Summary is the generated market report for one run
type Summary struct {
	ID                 string    `json:"id"`
	Text               string    `json:"text"`
	SourceArticleCount int       `json:"source_article_count"`
	Provider           string    `json:"provider"`
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
}
