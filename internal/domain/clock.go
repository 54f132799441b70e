package domain

import "time"

// Clock supplies the current instant. Ledger operations never read the
// wall clock directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by previews and tests.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// DateOf truncates t to midnight UTC. Due dates and overdue counts are whole
// calendar days.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}
