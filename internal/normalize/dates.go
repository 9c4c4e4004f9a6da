package normalize

import "time"

const isoDateLayout = "2006-01-02"

// ParseISODate parses a YYYY-MM-DD date. The returned time is at midnight UTC.
func ParseISODate(s string) (time.Time, error) {
	return time.Parse(isoDateLayout, s)
}

// FormatISODate formats t as YYYY-MM-DD.
func FormatISODate(t time.Time) string {
	return t.Format(isoDateLayout)
}

// DaysBetween returns the whole-day difference b-a, truncating both to
// midnight UTC first so that time-of-day does not perturb the count.
func DaysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// IsOverdue reports whether due is strictly before today (both compared at
// day resolution).
func IsOverdue(due, today time.Time) bool {
	return DaysBetween(today, due) < 0
}

// DaysOverdue returns max(0, today-due) in whole days.
func DaysOverdue(due, today time.Time) int {
	d := DaysBetween(due, today)
	if d < 0 {
		return 0
	}
	return d
}
