package common

import (
	"time"
	_ "time/tzdata" // Asia/Taipei must resolve on minimal images
)

// Clock is the single source of the reference instant for a run.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock and normalizes it to UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time {
	return c.T.UTC()
}
