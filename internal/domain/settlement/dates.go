package settlement

import "time"

// DayOf returns the calendar day of t in loc, encoded as midnight UTC.
// Attribution dates are always stored in this form so that equality and
// ordering comparisons do not depend on the server timezone.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeDay truncates an already-civil date to midnight UTC.
func NormalizeDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b are the same civil date.
func SameDay(a, b time.Time) bool {
	return NormalizeDay(a).Equal(NormalizeDay(b))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDay(d), nil
}

// withDay moves t to the given civil day in loc, keeping its time of day.
func withDay(t time.Time, day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(),
		lt.Hour(), lt.Minute(), lt.Second(), lt.Nanosecond(), loc)
}
