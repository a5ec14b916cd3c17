package timex

import "time"

// Canonical layouts used when date and time values are serialized for
// storage or rendered in change logs.
const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04:05.999999999Z07:00"
	DateTimeLayout = time.RFC3339Nano
)

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClockOf keeps the wall clock and zone of t on the zero date (0000-01-01),
// which is where time-of-day values live.
func ClockOf(t time.Time) time.Time {
	return time.Date(0, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Clock builds a time-of-day value in UTC.
func Clock(hour, min, sec, nsec int) time.Time {
	return time.Date(0, time.January, 1, hour, min, sec, nsec, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SameClock reports whether a and b denote the same time of day, comparing
// the instant so that equal clocks in different zones match.
func SameClock(a, b time.Time) bool {
	return ClockOf(a).Equal(ClockOf(b))
}

// MonthStart returns midnight on the first day of t's month, in t's zone.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// YearsBetween returns the number of whole years from born to now.
func YearsBetween(born, now time.Time) int {
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	return years
}
