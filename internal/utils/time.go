package utils

import "time"

func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	now := Now()
	return &now
}

func ToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey and HourKey name the usage windows sending counters are kept in.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func HourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}
