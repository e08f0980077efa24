package domain

import "time"

// dayFormat is the canonical calendar-day key, YYYY-MM-DD.
const dayFormat = "2006-01-02"

// Today returns the current calendar day key in UTC.
func Today() string {
	return DayKey(time.Now().UTC())
}

// DayKey formats t as a canonical day key.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayFormat)
}

// ValidDay reports whether s is a well-formed day key.
func ValidDay(s string) bool {
	_, err := time.Parse(dayFormat, s)
	return err == nil
}

// LastNDays returns the day keys for the past n days including today,
// newest first.
func LastNDays(n int) []string {
	if n <= 0 {
		return nil
	}
	now := time.Now().UTC()
	days := make([]string, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, DayKey(now.AddDate(0, 0, -i)))
	}
	return days
}
