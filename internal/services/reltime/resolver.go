// Package reltime resolves the coarse relative-time phrases shown on news
// listings ("3小時前", "昨天", "5 minutes ago") into absolute instants.
//
// The result is approximate and only decides when to stop scrolling a
// listing. Article acceptance always uses the precise page timestamp.
package reltime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxMagnitude keeps magnitude*unit well inside time.Duration range
const maxMagnitude = 100000

var magnitudePattern = regexp.MustCompile(`\d+`)

type unit struct {
	markers []string
	size    time.Duration
}

// Checked in order; the first unit whose marker appears wins.
var units = []unit{
	{markers: []string{"天", "day"}, size: 24 * time.Hour},
	{markers: []string{"小時", "hour"}, size: time.Hour},
	{markers: []string{"分鐘", "分钟", "minute", "min"}, size: time.Minute},
}

var (
	agoMarkers       = []string{"前", "ago"}
	yesterdayMarkers = []string{"昨天", "yesterday"}

	// keywords that make a listing span a candidate time phrase
	phraseKeywords = []string{"前", "小時", "分鐘", "昨天", "ago", "yesterday"}
)

// Resolve converts phrase into an absolute instant anchored at now.
// ok is false when the phrase is not a relative-time phrase the resolver
// understands, including an "ago" phrase without a number or unit.
func Resolve(phrase string, now time.Time) (t time.Time, ok bool) {
	text := strings.ToLower(strings.TrimSpace(phrase))
	if text == "" {
		return time.Time{}, false
	}

	if containsAny(text, agoMarkers) {
		if t, ok := resolveAgo(text, now); ok {
			return t, true
		}
	}

	if containsAny(text, yesterdayMarkers) {
		return now.Add(-24 * time.Hour), true
	}

	return time.Time{}, false
}

func resolveAgo(text string, now time.Time) (time.Time, bool) {
	digits := magnitudePattern.FindString(text)
	if digits == "" {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n > maxMagnitude {
		return time.Time{}, false
	}

	for _, u := range units {
		if containsAny(text, u.markers) {
			return now.Add(-time.Duration(n) * u.size), true
		}
	}
	return time.Time{}, false
}

// IsRelativePhrase reports whether text carries one of the relative-time
// keywords. It is a cheap pre-filter; Resolve may still reject the text.
func IsRelativePhrase(text string) bool {
	return containsAny(strings.ToLower(text), phraseKeywords)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
