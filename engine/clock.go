package engine

import "time"

// Clock supplies the current time for receivedAt/entryDate/finishedAt
// defaults. Tests substitute a fixed clock so derived timestamps pin down.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
