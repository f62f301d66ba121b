package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeWindow_BoundaryInclusive(t *testing.T) {
	now := time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)
	w := NewTimeWindow(now, 12*time.Hour)

	assert.True(t, w.Contains(w.Boundary()))
	assert.True(t, w.Contains(w.Boundary().Add(time.Nanosecond)))
	assert.False(t, w.Contains(w.Boundary().Add(-time.Nanosecond)))
	assert.True(t, w.Contains(now))
}

func TestTimeWindow_ZoneIndependent(t *testing.T) {
	taipei := time.FixedZone("CST", 8*3600)
	now := time.Date(2025, 10, 16, 20, 0, 0, 0, taipei)
	w := NewTimeWindow(now, time.Hour)

	assert.Equal(t, time.UTC, w.Now.Location())
	// 11:30 UTC is 19:30 in Taipei, inside the window
	assert.True(t, w.Contains(time.Date(2025, 10, 16, 11, 30, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2025, 10, 16, 18, 59, 0, 0, taipei)))
}

func TestCandidateReference_Resolve(t *testing.T) {
	taipei := time.FixedZone("CST", 8*3600)
	c := CandidateReference{Headline: "h", URL: "https://example.com/a"}
	r := c.Resolve(time.Date(2025, 10, 16, 8, 0, 0, 0, taipei), "body")

	assert.Equal(t, "h", r.Headline)
	assert.Equal(t, "https://example.com/a", r.URL)
	assert.Equal(t, time.UTC, r.PublishedAt.Location())
	assert.Equal(t, 0, r.PublishedAt.Hour())
	assert.Equal(t, "body", r.Content)
}

func TestParseStage(t *testing.T) {
	s, ok := ParseStage("narrate")
	assert.True(t, ok)
	assert.Equal(t, StageNarrate, s)

	_, ok = ParseStage("publish")
	assert.False(t, ok)
}
